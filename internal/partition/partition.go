package partition

// Split divides ids into contiguous chunks for numTasks workers. When there are no more ids
// than workers the whole list becomes a single chunk. Otherwise it yields exactly numTasks
// chunks of len(ids)/numTasks ids, and the final chunk also takes the remainder.
// The result depends only on ids and numTasks.
func Split(ids []string, numTasks int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if numTasks < 1 || len(ids) <= numTasks {
		return [][]string{clone(ids)}
	}

	size := len(ids) / numTasks
	chunks := make([][]string, 0, numTasks)
	for i := range numTasks {
		start := i * size
		end := start + size
		if i == numTasks-1 {
			end = len(ids)
		}
		chunks = append(chunks, clone(ids[start:end]))
	}
	return chunks
}

func clone(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
