// Package client is a Go client for the gophauth gRPC service.
//
// GRPCClient keeps the current token pair, sends the access token as a
// bearer header and, when the server reports an expired access token,
// rotates the pair once and retries the call.
//
// Business faults come back as *common.Error values carrying the kind and
// user message sent by the server, so callers match them with errors.Is
// against the common sentinels. Transport faults map to ErrUnavailable.
package client
