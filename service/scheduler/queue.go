package scheduler

// fifo is a queue of descriptor ids; callers hold the scheduler lock.
type fifo []int

func (q *fifo) push(id int) {
	*q = append(*q, id)
}

func (q *fifo) front() (int, bool) {
	if len(*q) == 0 {
		return 0, false
	}
	return (*q)[0], true
}

func (q *fifo) pop() (int, bool) {
	id, ok := q.front()
	if ok {
		*q = (*q)[1:]
	}
	return id, ok
}

// remove deletes id and returns its former index or -1.
func (q *fifo) remove(id int) int {
	for i, candidate := range *q {
		if candidate == id {
			*q = append((*q)[:i], (*q)[i+1:]...)
			return i
		}
	}
	return -1
}

func (q fifo) ids() []int {
	return append([]int(nil), q...)
}
