// Command rpc-client is a reference client process built on the
// ClientManager: it reads free-form request bodies from stdin, one per
// line, submits each as a call against a single configured service, and
// prints the outcome. It exists to give the module something runnable
// end to end over pduws, not as a production client.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/rs/xid"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"go.uber.org/zap"

	"github.com/hakoniwalab/hakoniwa-pdu-rpc/config"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/manager"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/pdu"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/pdu/pduws"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpcerrors"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpctypes"
)

var (
	configPath  string
	clientName  string
	nodeID      string
	serviceName string
	timeoutMs   uint
)

var rootCmd = &cobra.Command{
	Use:   "rpc-client",
	Short: "Submit line-delimited request bodies against one RPC service and print the replies.",
	RunE:  runClient,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to the service definition document")
	rootCmd.Flags().StringVar(&clientName, "client-name", "TestClient", "client identity as declared in the service's clients array")
	rootCmd.Flags().StringVar(&nodeID, "node", "", "this process's node id in the document's endpoints section")
	rootCmd.Flags().StringVar(&serviceName, "service", "Service/Add", "service name to call")
	rootCmd.Flags().UintVar(&timeoutMs, "timeout-ms", 0, "optional per-call timeout in milliseconds; 0 means no timeout")
	rootCmd.MarkFlagRequired("config")
	rootCmd.MarkFlagRequired("node")
}

func main() {
	_ = godotenv.Load()
	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt)
	go func() {
		<-interrupted
		atexit.Exit(1)
	}()
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func runClient(cmd *cobra.Command, args []string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	doc, err := config.Load(configPath)
	if err != nil {
		return err
	}

	clock := pdu.NewRealTimeSource()
	clientMgr := manager.NewClientManager(clientName, nodeID, log)
	if err := clientMgr.Initialize(doc, resolveTransport(log, doc), clock); err != nil {
		return err
	}
	atexit.Register(func() {
		if err := clientMgr.StopAllServices(); err != nil {
			log.Warn("rpc-client: error stopping transports on exit", zap.Error(err))
		}
	})

	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow, color.Bold).SprintFunc()

	timeoutUsec := uint64(timeoutMs) * 1000

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		correlationID := xid.New().String()
		if err := clientMgr.Call(serviceName, []byte(line), timeoutUsec); err != nil {
			fmt.Println(red("ERROR: ") + err.Error())
			continue
		}
		log.Info("rpc-client: submitted request",
			zap.String("correlation_id", correlationID), zap.String("service", serviceName), zap.String("body", line))

		for {
			svc, event, _, body := clientMgr.Poll()
			if event == rpctypes.ClientEventNone {
				clock.Sleep(1000)
				continue
			}
			switch event {
			case rpctypes.ClientEventResponseIn:
				fmt.Printf("%s %s => %s\n", green("OK"), svc, string(body))
			case rpctypes.ClientEventResponseCancel:
				fmt.Printf("%s %s\n", yellow("CANCELED"), svc)
			case rpctypes.ClientEventResponseTimeout:
				fmt.Printf("%s %s\n", red("TIMEOUT"), svc)
			}
			break
		}
	}
	return scanner.Err()
}

// resolveTransport opens and starts a pduws.Endpoint for whatever
// (node, endpoint) pair the document names, per the config_path each
// endpoint declaration carries.
func resolveTransport(log *zap.Logger, doc *config.Document) manager.TransportResolver {
	return func(node, endpointID string) (pdu.Endpoint, error) {
		path, ok := doc.FindEndpointConfigPath(node, endpointID)
		if !ok {
			return nil, fmt.Errorf("%w: no endpoint %q declared for node %q", rpcerrors.ErrConfigMalformed, endpointID, node)
		}
		ep := pduws.New(log)
		if err := ep.Open(path); err != nil {
			return nil, err
		}
		if err := ep.Start(); err != nil {
			return nil, err
		}
		return ep, nil
	}
}
