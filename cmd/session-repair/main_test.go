package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexmos/session-repair/internal/scan"
	"github.com/hexmos/session-repair/internal/storage"
)

func TestGroupBySessionPreservesScanOrder(t *testing.T) {
	records := []scan.Record{
		{SessionID: "ses_b", MessageID: "msg_3", SessionTitle: "B", Position: &storage.Position{MessageIndex: 3}},
		{SessionID: "ses_a", MessageID: "msg_2", SessionTitle: "A"},
		{SessionID: "ses_b", MessageID: "msg_1", SessionTitle: "B"},
	}

	groups := groupBySession(records)
	require.Len(t, groups, 2)

	assert.Equal(t, "ses_b", groups[0].SessionID)
	assert.Len(t, groups[0].Records, 2)
	// The group carries the newest record's position.
	require.NotNil(t, groups[0].Position)
	assert.Equal(t, 3, groups[0].Position.MessageIndex)

	assert.Equal(t, "ses_a", groups[1].SessionID)
	assert.Nil(t, groups[1].Position)
}

func TestMatchTarget(t *testing.T) {
	groups := []*sessionGroup{
		{SessionID: "ses_aaa111", Records: []scan.Record{{MessageID: "msg_xyz"}}},
		{SessionID: "ses_bbb222", Records: []scan.Record{{MessageID: "msg_uvw"}}},
	}

	g, _ := matchTarget(groups, "ses_aaa111")
	assert.Equal(t, "ses_aaa111", g.SessionID)
	g, _ = matchTarget(groups, "bbb")
	assert.Equal(t, "ses_bbb222", g.SessionID)
	g, _ = matchTarget(groups, "msg_uvw")
	assert.Equal(t, "ses_bbb222", g.SessionID)
	g, _ = matchTarget(groups, "xyz")
	assert.Equal(t, "ses_aaa111", g.SessionID)
	g, _ = matchTarget(groups, "nomatch")
	assert.Nil(t, g)
}

func TestMatchTargetUsesMatchedMessagePosition(t *testing.T) {
	// Two records of the same session reporting different positions: the
	// group carries the newest record's position, but a message-ID match
	// must repair with the matched record's own position.
	groups := []*sessionGroup{{
		SessionID: "ses_1",
		Position:  &storage.Position{MessageIndex: 5},
		Records: []scan.Record{
			{MessageID: "msg_new", Position: &storage.Position{MessageIndex: 5}},
			{MessageID: "msg_old", Position: &storage.Position{MessageIndex: 1}},
		},
	}}

	g, pos := matchTarget(groups, "ses_1")
	require.NotNil(t, g)
	require.NotNil(t, pos)
	assert.Equal(t, 5, pos.MessageIndex)

	g, pos = matchTarget(groups, "msg_old")
	require.NotNil(t, g)
	require.NotNil(t, pos)
	assert.Equal(t, 1, pos.MessageIndex)
}
