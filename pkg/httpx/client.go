package httpx

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	envtls "github.com/HatiCode/envmon/pkg/tls"
)

// NewClient creates an HTTP client. When tlsCfg is enabled the client
// presents its certificate for mutual TLS.
func NewClient(tlsCfg envtls.Config, timeout time.Duration) (*http.Client, error) {
	var cryptoTLSConfig *tls.Config
	if tlsCfg.Enabled {
		var err error
		cryptoTLSConfig, err = envtls.NewClientTLSConfig(tlsCfg.CertFile, tlsCfg.KeyFile, tlsCfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("create TLS config: %w", err)
		}
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			TLSClientConfig:     cryptoTLSConfig,
		},
	}, nil
}
