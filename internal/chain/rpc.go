package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// RPCClient is a minimal JSON-RPC 2.0 client for the chain node.
type RPCClient struct {
	url        string
	httpClient *http.Client
	requestID  atomic.Uint64
}

// NewRPCClient returns an RPCClient targeting url, with a 30-second request
// timeout covering the round trip of a submitted transaction.
func NewRPCClient(url string) *RPCClient {
	return &RPCClient{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call invokes method with params and decodes the result into out. If the
// node returns an RPC-level error, Call returns it as an *rpcError so callers
// can inspect the code (e.g. MoveAbort codes) via errors.As.
func (c *RPCClient) Call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	id := c.requestID.Add(1)

	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc request %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read rpc response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc request %s: status %d: %s", method, resp.StatusCode, string(body))
	}

	var envelope struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      uint64          `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode rpc envelope: %w", err)
	}

	if envelope.Error != nil {
		return envelope.Error
	}

	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode rpc result for %s: %w", method, err)
	}
	return nil
}
