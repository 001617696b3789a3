package monitor

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_GathersDomainCollectors(t *testing.T) {
	FilesTotal.WithLabelValues("accepted").Add(2)
	AnalysesTotal.WithLabelValues("batch", "ok").Inc()
	PreviewHandles.Set(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(FilesTotal.WithLabelValues("accepted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(PreviewHandles))

	families, err := Registry().Gather()
	assert.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["intake_files_total"])
	assert.True(t, names["analyses_total"])
	assert.True(t, names["preview_handles_live"])
}

func TestCheckProcessInfo_SamplesOwnProcess(t *testing.T) {
	GotPID()
	CheckProcessInfo()
	assert.Greater(t, testutil.ToFloat64(memUsage), 0.0)
}
