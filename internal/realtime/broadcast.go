package realtime

// Broadcast delivers msg to every member of taskID's room except excludeConnID
// (empty excludes nobody). The message is encoded once and the same immutable
// bytes are queued to each peer. A failed send does not stop the pass; the
// failed peers are removed and closed once every member has been tried.
func (r *Registry) Broadcast(taskID int64, msg Message, excludeConnID string) {
	r.mu.RLock()
	room := r.rooms[taskID]
	targets := make([]Peer, 0, len(room))
	for id, p := range room {
		if id != excludeConnID {
			targets = append(targets, p)
		}
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := Encode(msg)
	if err != nil {
		r.logger.Error("failed to encode broadcast", "error", err, "type", msg.Type())
		return
	}

	var failed []Peer
	for _, p := range targets {
		if err := p.Send(data); err != nil {
			r.logger.Warn("dropping peer after failed send",
				"conn_id", p.ID(),
				"task_id", taskID,
				"error", err)
			failed = append(failed, p)
		}
	}
	recordSent(msg.Type(), len(targets)-len(failed))

	for _, p := range failed {
		r.Leave(p.ID())
		_ = p.Close()
	}
	recordSendFailures(len(failed))
}
