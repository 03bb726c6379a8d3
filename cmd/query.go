package cmd

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/searchd/internal/security"
)

var queryCmd = &cobra.Command{
	Use:   "query <candidate>...",
	Short: "Query a running search server",
	Long: `Connect to a running searchd instance and look up one or more candidate
strings. Each candidate is sent as its own request on the same connection;
the server's response is printed per candidate.

Examples:
  searchd query "exact line to find"
  searchd query --host 10.0.0.5 --port 44445 "first" "second"
  searchd query --tls --ca certs/ca.crt --psk secret "line"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

var queryFlags struct {
	host    string
	port    int
	timeout time.Duration
	useTLS  bool
	cert    string
	key     string
	ca      string
	psk     string
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVar(&queryFlags.host, "host", "127.0.0.1", "Server host")
	queryCmd.Flags().IntVarP(&queryFlags.port, "port", "p", 44445, "Server port")
	queryCmd.Flags().DurationVar(&queryFlags.timeout, "timeout", 10*time.Second, "Connection and response timeout")
	queryCmd.Flags().BoolVar(&queryFlags.useTLS, "tls", false, "Connect over TLS")
	queryCmd.Flags().StringVar(&queryFlags.cert, "cert", "", "Client certificate file")
	queryCmd.Flags().StringVar(&queryFlags.key, "key", "", "Client private key file")
	queryCmd.Flags().StringVar(&queryFlags.ca, "ca", "", "CA file for server certificate verification")
	queryCmd.Flags().StringVar(&queryFlags.psk, "psk", "", "Pre-shared key")
}

func runQuery(cmd *cobra.Command, args []string) error {
	conn, err := dialServer()
	if err != nil {
		return err
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)

	if queryFlags.psk != "" {
		if _, err := conn.Write([]byte(queryFlags.psk + "\n")); err != nil {
			return fmt.Errorf("failed to send pre-shared key: %w", err)
		}
	}

	for _, candidate := range args {
		_ = conn.SetDeadline(time.Now().Add(queryFlags.timeout))

		if _, err := conn.Write([]byte(candidate + "\n")); err != nil {
			return fmt.Errorf("failed to send query: %w", err)
		}

		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read response (wrong pre-shared key?): %w", err)
		}

		fmt.Printf("%s\t%s\n", candidate, strings.TrimSuffix(response, "\n"))
	}

	return nil
}

func dialServer() (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", queryFlags.host, queryFlags.port)

	if !queryFlags.useTLS {
		conn, err := net.DialTimeout("tcp", addr, queryFlags.timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
		}
		return conn, nil
	}

	tlsConfig, err := security.ClientTLSConfig(queryFlags.cert, queryFlags.key, queryFlags.ca, queryFlags.host)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: queryFlags.timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("TLS connection to %s failed: %w", addr, err)
	}

	return conn, nil
}
