// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDryRunSuppressesWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	seedNode(t, m)
	m.ResetCalls()

	d := NewDryRun(m)
	before := testutil.ToFloat64(dryRunSkippedTotal.WithLabelValues("AddNodeTag"))

	nodes, err := d.GetNodes(ctx, Filter{"hostname": "mlab1.nuq0t.measurement-lab.org"})
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	id, err := d.AddNodeTag(ctx, nodes[0].NodeID, "deployment", "MeasurementLab")
	require.NoError(t, err)
	assert.Zero(t, id)
	require.NoError(t, d.AddSliceToNodes(ctx, 1, []string{"mlab1.nuq0t.measurement-lab.org"}))
	require.NoError(t, d.UpdateSlice(ctx, 1, Fields{"expires": 0}))

	assert.Equal(t, []string{"GetNodes"}, m.Methods())
	assert.Equal(t, before+1, testutil.ToFloat64(dryRunSkippedTotal.WithLabelValues("AddNodeTag")))

	tags, err := m.GetNodeTags(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, tags)
}
