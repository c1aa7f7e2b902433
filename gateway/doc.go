// Package gateway is the only channel between the flow controller and the
// authentication service.
//
// Every call serializes a JSON body when present, sends the cookie jar with the
// request and decodes the response. Any non-2xx response, transport failure or
// undecodable body is normalized into a single *[BackendError]. The gateway
// performs exactly one attempt per call: no retries and no client-side timeout.
// Callers bound a call through the context they pass in.
package gateway
