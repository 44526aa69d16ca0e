package tgstats_test

import (
	"encoding/json"
	"testing"

	tgstats "github.com/jfk9w-go/telegram-stats-api"
	"github.com/stretchr/testify/assert"
)

func TestRequestZoom_Chart(t *testing.T) {
	ctx, cancel := getContext()
	defer cancel()

	transport := newTestTransport(1).
		reply("stats.loadAsyncGraph", `{"_": "statsGraph", "json": {"data": "{\"columns\": [1, 2]}"}, "zoom_token": "zt2"}`)

	client := &tgstats.Client{Transport: transport, Store: tgstats.NewMemoryStore()}
	stats := client.Statistics(channelRef(false))
	defer stats.Close()

	graph, err := stats.RequestZoom(ctx, "tok1", 42).Get(ctx)
	assert.Nil(t, err)
	assert.Equal(t, tgstats.GraphChart{Data: json.RawMessage(`{"columns": [1, 2]}`), ZoomToken: "zt2"}, graph)

	requests := transport.requests("stats.loadAsyncGraph")
	if assert.Len(t, requests, 1) {
		assert.Equal(t, tgstats.LoadAsyncGraph{Token: "tok1", X: 42}, requests[0])
	}
}

func TestRequestZoom_Async(t *testing.T) {
	ctx, cancel := getContext()
	defer cancel()

	transport := newTestTransport(1).
		reply("stats.loadAsyncGraph", `{"_": "statsGraphAsync", "token": "deferred"}`)

	client := &tgstats.Client{Transport: transport, Store: tgstats.NewMemoryStore()}
	stats := client.Statistics(channelRef(false))
	defer stats.Close()

	graph, err := stats.RequestZoom(ctx, "tok1", 0).Get(ctx)
	assert.Nil(t, err)
	assert.Equal(t, tgstats.GraphAsync{Token: "deferred"}, graph)
}

func TestRequestZoom_Error(t *testing.T) {
	ctx, cancel := getContext()
	defer cancel()

	transport := newTestTransport(1).
		reply("stats.loadAsyncGraph", `{"_": "statsGraphError", "error": "GRAPH_OUTDATED"}`)

	client := &tgstats.Client{Transport: transport, Store: tgstats.NewMemoryStore()}
	stats := client.Statistics(channelRef(false))
	defer stats.Close()

	graph, err := stats.RequestZoom(ctx, "tok1", 0).Get(ctx)
	assert.Nil(t, err)
	assert.Equal(t, tgstats.GraphError{Message: "GRAPH_OUTDATED"}, graph)
}

func TestRequestZoom_UnknownConstructor(t *testing.T) {
	ctx, cancel := getContext()
	defer cancel()

	transport := newTestTransport(1).
		reply("stats.loadAsyncGraph", `{"_": "statsGraphBogus"}`)

	client := &tgstats.Client{Transport: transport, Store: tgstats.NewMemoryStore()}
	stats := client.Statistics(channelRef(false))
	defer stats.Close()

	_, err := stats.RequestZoom(ctx, "tok1", 0).Get(ctx)
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "unknown graph constructor")
}
