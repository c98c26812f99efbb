package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rosteleset/falprs-go/internal/cache"
	"github.com/rosteleset/falprs-go/internal/config"
	"github.com/rosteleset/falprs-go/internal/logging"
	"github.com/rosteleset/falprs-go/internal/pipeline"
)

func TestMakeIterationFuncSkipsUnknownStream(t *testing.T) {
	streams := cache.NewStreamConfigCache(nil, logging.NewDefault())
	tenantConfigs := cache.NewTenantConfigCache(nil, logging.NewDefault())
	deps := &pipeline.FRSDeps{Log: logging.NewDefault()}

	fn := makeIterationFunc(deps, streams, tenantConfigs, &config.Config{})
	ok, delay := fn(context.Background(), "no-such-stream")
	assert.False(t, ok)
	assert.Zero(t, delay)
}
