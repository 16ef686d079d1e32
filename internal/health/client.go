package health

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Prober queries a running recorder's health service.
type Prober struct {
	conn       *grpc.ClientConn
	client     healthpb.HealthClient
	retryCount int
	retryDelay time.Duration
}

// NewProber creates a prober for serverAddr. Without useTLS the connection
// is plaintext.
func NewProber(serverAddr string, useTLS bool, opts ...grpc.DialOption) (*Prober, error) {
	if useTLS {
		// Server certificate only, no client certificate
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, "")))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(serverAddr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to health service: %v", err)
	}

	return &Prober{
		conn:       conn,
		client:     healthpb.NewHealthClient(conn),
		retryCount: 3,
		retryDelay: time.Second,
	}, nil
}

// Check returns the serving status of the capture service, retrying
// transport failures.
func (p *Prober) Check(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	var lastErr error
	for i := 0; i < p.retryCount; i++ {
		resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: Service})
		if err == nil {
			return resp.GetStatus(), nil
		}
		lastErr = err
		if i == p.retryCount-1 {
			break
		}
		select {
		case <-ctx.Done():
			return healthpb.HealthCheckResponse_UNKNOWN, ctx.Err()
		case <-time.After(p.retryDelay):
		}
	}
	return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check failed after %d attempts: %v", p.retryCount, lastErr)
}

// Close releases the connection.
func (p *Prober) Close() error {
	return p.conn.Close()
}
