// Package grpc serves the standard gRPC health service and server reflection
// so orchestrators can probe the process.
package grpc
