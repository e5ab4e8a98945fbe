// Package chaintest provides an in-process JSON-RPC node that answers eth_call
// by function selector. It is used by tests that exercise real go-ethereum
// clients against canned contract state.
package chaintest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// CallHandler answers an eth_call. to is the target contract and args is the
// ABI-encoded argument data with the selector stripped.
type CallHandler func(to common.Address, args []byte) ([]byte, error)

// Node is a mock Ethereum JSON-RPC endpoint.
type Node struct {
	srv *httptest.Server

	mu       sync.Mutex
	chainID  *big.Int
	handlers map[string]CallHandler
	calls    map[string]int
	methods  map[string]int
}

// NewNode starts a node. Close it when done.
func NewNode(chainID int64) *Node {
	n := &Node{
		chainID:  big.NewInt(chainID),
		handlers: make(map[string]CallHandler),
		calls:    make(map[string]int),
		methods:  make(map[string]int),
	}
	n.srv = httptest.NewServer(http.HandlerFunc(n.serve))
	return n
}

// URL returns the HTTP endpoint.
func (n *Node) URL() string { return n.srv.URL }

// Close shuts the server down.
func (n *Node) Close() { n.srv.Close() }

// Handle registers h for calls to the function with the given signature,
// e.g. "balanceOf(address)". A later registration replaces an earlier one.
func (n *Node) Handle(signature string, h CallHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[Selector(signature)] = h
}

// Calls returns how many eth_calls hit the given function signature.
func (n *Node) Calls(signature string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[Selector(signature)]
}

// Requests returns how many requests used the given RPC method.
func (n *Node) Requests(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.methods[method]
}

// Selector returns the 0x-prefixed 4-byte selector for a function signature.
func Selector(signature string) string {
	return "0x" + hex.EncodeToString(crypto.Keccak256([]byte(signature))[:4])
}

// Uint encodes v as a single uint256 word.
func Uint(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

// Bools encodes each value as a 32-byte word.
func Bools(values ...bool) []byte {
	out := make([]byte, 32*len(values))
	for i, v := range values {
		if v {
			out[32*i+31] = 1
		}
	}
	return out
}

// ArgAddress decodes the first argument word as an address.
func ArgAddress(args []byte) common.Address {
	if len(args) < 32 {
		return common.Address{}
	}
	return common.BytesToAddress(args[12:32])
}

// ArgUint decodes the first argument word as an unsigned integer.
func ArgUint(args []byte) *big.Int {
	if len(args) < 32 {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(args[:32])
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.methods[req.Method]++
	n.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	reply := map[string]any{"jsonrpc": "2.0", "id": req.ID}

	switch req.Method {
	case "eth_chainId":
		reply["result"] = fmt.Sprintf("0x%x", n.chainID)
	case "net_version":
		reply["result"] = n.chainID.String()
	case "eth_blockNumber":
		reply["result"] = "0x1"
	case "eth_call":
		out, err := n.call(req.Params)
		if err != nil {
			reply["error"] = rpcError{Code: -32000, Message: err.Error()}
		} else {
			reply["result"] = "0x" + hex.EncodeToString(out)
		}
	case "eth_getCode":
		reply["result"] = "0x6080"
	default:
		reply["error"] = rpcError{Code: -32601, Message: "method not supported: " + req.Method}
	}
	json.NewEncoder(w).Encode(reply)
}

func (n *Node) call(raw json.RawMessage) ([]byte, error) {
	var params []json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil || len(params) == 0 {
		return nil, fmt.Errorf("bad eth_call params")
	}
	var msg struct {
		To    string `json:"to"`
		Input string `json:"input"`
		Data  string `json:"data"`
	}
	if err := json.Unmarshal(params[0], &msg); err != nil {
		return nil, err
	}
	// go-ethereum v1.17 sends "input", older versions "data"
	input := msg.Input
	if input == "" {
		input = msg.Data
	}
	input = strings.TrimPrefix(input, "0x")
	if len(input) < 8 {
		return nil, fmt.Errorf("call data too short")
	}
	selector := "0x" + input[:8]
	args, err := hex.DecodeString(input[8:])
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.calls[selector]++
	h, ok := n.handlers[selector]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("execution reverted: no handler for %s", selector)
	}
	return h(common.HexToAddress(msg.To), args)
}

// Returns answers every call with out.
func Returns(out []byte) CallHandler {
	return func(common.Address, []byte) ([]byte, error) { return out, nil }
}

// Reverts fails every call with msg.
func Reverts(msg string) CallHandler {
	return func(common.Address, []byte) ([]byte, error) { return nil, fmt.Errorf("execution reverted: %s", msg) }
}
