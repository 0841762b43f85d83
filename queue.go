package nrf70

// halMsg is one message in flight between the host and the RPU: a command
// fragment waiting for delivery or a received event waiting for the
// upstream callback. The queue currently holding a message owns it;
// ownership moves on pop and the popping side releases it.
type halMsg struct {
	data []byte
}

// msgQueue is a FIFO of halMsg. It does no locking of its own: the
// command queue is covered by the command lock, the event queue by the
// receive lock.
type msgQueue struct {
	msgs []halMsg
}

func (q *msgQueue) push(m halMsg) {
	q.msgs = append(q.msgs, m)
}

func (q *msgQueue) pop() (m halMsg, ok bool) {
	if len(q.msgs) == 0 {
		return halMsg{}, false
	}
	m = q.msgs[0]
	q.msgs[0] = halMsg{}
	q.msgs = q.msgs[1:]
	if len(q.msgs) == 0 {
		q.msgs = nil
	}
	return m, true
}

func (q *msgQueue) len() int { return len(q.msgs) }
