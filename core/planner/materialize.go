package planner

import "github.com/openfms/agvd/core/model"

// Materialize turns a raw path into the artifacts a vehicle executes:
// checkpoints it reports against and segments it drives. Sequence
// numbers advance by model.RouteSeqStep. Every interior node that
// carries a station becomes a middle checkpoint, intersection waiting
// points included; bare geometry nodes are skipped.
func (p *Planner) Materialize(raw *Path) ([]model.Checkpoint, []model.Segment) {
	nodes := raw.Nodes()
	if len(nodes) == 0 {
		return nil, nil
	}

	var checkpoints []model.Checkpoint
	seq := model.RouteSeqStep
	add := func(code string, typ model.CheckpointType) {
		checkpoints = append(checkpoints, model.Checkpoint{
			Seq:         seq,
			StationCode: code,
			Type:        typ,
		})
		seq += model.RouteSeqStep
	}

	if s, ok := p.stationsByNode[nodes[0].ID]; ok {
		add(s.Code, model.CheckpointStart)
	}
	for _, n := range nodes[1 : len(nodes)-1] {
		if s, ok := p.stationsByNode[n.ID]; ok {
			add(s.Code, model.CheckpointMiddle)
		}
	}
	if s, ok := p.stationsByNode[nodes[len(nodes)-1].ID]; ok {
		add(s.Code, model.CheckpointEnd)
	}

	segments := make([]model.Segment, 0, len(raw.Hops))
	for i, h := range raw.Hops {
		// First segment drives forward; afterwards the vehicle is
		// retracing whenever consecutive edges share an end node.
		dir := model.DirectionForward
		if i > 0 && raw.Hops[i-1].Edge.EndNodeID == h.Edge.EndNodeID {
			dir = model.DirectionBackward
		}
		action := model.FinalNone
		if i == len(raw.Hops)-1 {
			action = model.FinalStop
		}
		segments = append(segments, model.Segment{
			Seq:         (i + 1) * model.RouteSeqStep,
			EdgeID:      h.Edge.ID,
			Direction:   dir,
			FinalAction: action,
		})
	}
	return checkpoints, segments
}
