package dispatcher

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressRespectsInterval(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	start := time.Unix(0, 0)
	p := newProgress(logger, time.Second, start)

	assert.True(t, p.tic(start, false, Stats{}), "first record is always written")
	assert.False(t, p.tic(start.Add(100*time.Millisecond), false, Stats{Explored: 10}))
	assert.True(t, p.tic(start.Add(2*time.Second), false, Stats{Explored: 20}))

	p.newObjective()
	assert.True(t, p.tic(start.Add(2100*time.Millisecond), false, Stats{Explored: 21, BestObjective: 3}))
	assert.False(t, p.tic(start.Add(2200*time.Millisecond), false, Stats{Explored: 22}))
	assert.True(t, p.tic(start.Add(2300*time.Millisecond), true, Stats{Explored: 23}))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[2], &rec))
	assert.Equal(t, "progress", rec["msg"])
	assert.Equal(t, true, rec["new_incumbent"])
	assert.Equal(t, 3.0, rec["incumbent"])

	require.NoError(t, json.Unmarshal(lines[3], &rec))
	_, marked := rec["new_incumbent"]
	assert.False(t, marked)
}

func TestProgressCapsHugeGap(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(slog.New(slog.NewJSONHandler(&buf, nil)), 0, time.Unix(0, 0))
	p.tic(time.Unix(1, 0), true, Stats{RelativeGap: 500})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "9999+", rec["rel_gap_pct"])
}
