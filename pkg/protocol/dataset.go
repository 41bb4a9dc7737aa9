package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/symgym/symgym/pkg/domain"
)

// Dataset shapes. An episode is persisted as an ordered list of
// (snapshot, command, reward) records plus the final snapshot, so each
// intermediate snapshot is stored once even though it is both the Next of
// one transition and the Prev of the following one.
type episodePayload struct {
	SessionID   string           `json:"session_id"`
	MapID       string           `json:"map_id"`
	Records     []recordPayload  `json:"records"`
	Final       *json.RawMessage `json:"final,omitempty"`
	Faulted     bool             `json:"faulted,omitempty"`
	FaultReason string           `json:"fault_reason,omitempty"`
}

type recordPayload struct {
	State   json.RawMessage `json:"state"`
	Command string          `json:"command"`
	Reward  domain.Reward   `json:"reward"`
}

// EncodeEpisode serializes a trajectory for offline storage.
func EncodeEpisode(ep domain.Episode) ([]byte, error) {
	out := episodePayload{
		SessionID:   ep.SessionID,
		MapID:       ep.MapID,
		Faulted:     ep.Faulted,
		FaultReason: ep.FaultReason,
		Records:     make([]recordPayload, 0, len(ep.Records)),
	}
	for _, rec := range ep.Records {
		state, err := EncodeGraphState(rec.Prev)
		if err != nil {
			return nil, err
		}
		out.Records = append(out.Records, recordPayload{
			State:   state,
			Command: string(rec.Command.StateID),
			Reward:  rec.Reward,
		})
	}
	if n := len(ep.Records); n > 0 {
		final, err := EncodeGraphState(ep.Records[n-1].Next)
		if err != nil {
			return nil, err
		}
		raw := json.RawMessage(final)
		out.Final = &raw
	}
	return json.Marshal(out)
}

// DecodeEpisode reconstructs a trajectory from its persisted form. Every
// embedded snapshot goes through full validation, so replay consumers see
// the same invariants as live sessions.
func DecodeEpisode(data []byte) (domain.Episode, error) {
	var raw episodePayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Episode{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	ep := domain.Episode{
		SessionID:   raw.SessionID,
		MapID:       raw.MapID,
		Faulted:     raw.Faulted,
		FaultReason: raw.FaultReason,
	}
	if len(raw.Records) == 0 {
		return ep, nil
	}
	if raw.Final == nil {
		return domain.Episode{}, fmt.Errorf("%w: episode with records but no final state", domain.ErrMalformedPayload)
	}

	states := make([]domain.GraphState, 0, len(raw.Records)+1)
	for _, rec := range raw.Records {
		gs, err := DecodeGraphState(rec.State)
		if err != nil {
			return domain.Episode{}, err
		}
		states = append(states, gs)
	}
	final, err := DecodeGraphState(*raw.Final)
	if err != nil {
		return domain.Episode{}, err
	}
	states = append(states, final)

	ep.Records = make([]domain.StepRecord, 0, len(raw.Records))
	for i, rec := range raw.Records {
		ep.Records = append(ep.Records, domain.StepRecord{
			Prev:    states[i],
			Command: domain.StepCommand{StateID: domain.StateID(rec.Command)},
			Reward:  rec.Reward,
			Next:    states[i+1],
		})
	}
	return ep, nil
}
