package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/naval-sim/internal/engine"
)

func TestDecode_KnownShapes(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"CHAT","payload":{"id":"1","sender":"Ana","text":"hi","timestamp":1700000000000}}`))
	require.NoError(t, err)
	require.Equal(t, Chat{ID: "1", Sender: "Ana", Text: "hi", Timestamp: 1700000000000}, ev)

	ev, err = Decode([]byte(`{"type":"SYNC_REQUEST","payload":null}`))
	require.NoError(t, err)
	require.Equal(t, SyncRequest{}, ev)

	ev, err = Decode([]byte(`{"type":"SEQUENCE_UPDATE","payload":{"steps":["valve","lube"],"version":{"counter":3,"origin":"cadet-x"}}}`))
	require.NoError(t, err)
	require.Equal(t, SequenceUpdate{Steps: []string{"valve", "lube"}, Version: engine.Version{Counter: 3, Origin: "cadet-x"}}, ev)
}

func TestDecode_RejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `{"type":`, ErrMalformedEvent},
		{"unknown tag", `{"type":"TELEPORT","payload":{}}`, ErrUnknownEvent},
		{"missing payload", `{"type":"STATE_UPDATE"}`, ErrMalformedEvent},
		{"unknown stage", `{"type":"STATE_UPDATE","payload":{"stage":"ENGINE_FIRE"}}`, ErrMalformedEvent},
		{"payload of wrong shape", `{"type":"CHAT","payload":{"id":7}}`, ErrMalformedEvent},
		{"chat without sender", `{"type":"CHAT","payload":{"id":"1","text":"hi"}}`, ErrMalformedEvent},
		{"steps out of order", `{"type":"SEQUENCE_UPDATE","payload":{"steps":["lube","valve"]}}`, ErrMalformedEvent},
		{"sync response with bad steps", `{"type":"SYNC_RESPONSE","payload":{"stage":"SEQUENCE","sequenceSteps":["breaker"]}}`, ErrMalformedEvent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Decode([]byte(tc.raw))
			require.ErrorIs(t, err, tc.want)
			require.Nil(t, ev)
		})
	}
}

func TestEncode_SyncRequestHasNullPayload(t *testing.T) {
	raw, err := Encode(SyncRequest{})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"SYNC_REQUEST","payload":null}`, string(raw))
}

func TestNewSyncResponse_CopiesSteps(t *testing.T) {
	state := engine.State{Stage: engine.StageSequence, Steps: []string{"valve"}}
	resp := NewSyncResponse(state)
	resp.SequenceSteps[0] = "lube"

	require.Equal(t, "valve", state.Steps[0])
	require.Equal(t, []string{}, NewSyncResponse(engine.State{Stage: engine.StageStart}).SequenceSteps)
}
