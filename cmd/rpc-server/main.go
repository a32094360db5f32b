// Command rpc-server is a reference server process built on the
// ServerManager. It serves Service/Add: every request body is expected
// to contain two integers, and the reply body is their decimal sum.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strconv"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
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
	configPath string
	nodeID     string
)

var rootCmd = &cobra.Command{
	Use:   "rpc-server",
	Short: "Serve Service/Add: reply to every request with the sum of the two integers in its body.",
	RunE:  runServer,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to the service definition document")
	rootCmd.Flags().StringVar(&nodeID, "node", "", "this process's node id in the document's endpoints section")
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

var integerPattern = regexp.MustCompile(`-?\d+`)

// parseAddBody accepts any body that contains at least two integers,
// separated however the caller likes ("3 5", "a=3,b=5", "3,5"), and
// returns the first two.
func parseAddBody(body []byte) (a, b int, err error) {
	matches := integerPattern.FindAllString(string(body), -1)
	if len(matches) < 2 {
		return 0, 0, fmt.Errorf("%w: request body %q does not contain two integers", rpcerrors.ErrMalformed, body)
	}
	if a, err = strconv.Atoi(matches[0]); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", rpcerrors.ErrMalformed, err)
	}
	if b, err = strconv.Atoi(matches[1]); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", rpcerrors.ErrMalformed, err)
	}
	return a, b, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	doc, err := config.Load(configPath)
	if err != nil {
		return err
	}

	serverMgr := manager.NewServerManager(nodeID, log)
	if err := serverMgr.Initialize(doc, resolveTransport(log, doc)); err != nil {
		return err
	}
	atexit.Register(func() {
		if err := serverMgr.StopAllServices(); err != nil {
			log.Warn("rpc-server: error stopping transports on exit", zap.Error(err))
		}
	})

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	clock := pdu.NewRealTimeSource()
	fmt.Println(green("rpc-server: serving on node " + nodeID))

	for {
		svc, event, req, body := serverMgr.Poll()
		switch event {
		case rpctypes.ServerEventNone:
			clock.Sleep(1000)

		case rpctypes.ServerEventRequestIn:
			a, b, err := parseAddBody(body)
			if err != nil {
				fmt.Println(red("ERROR ") + req.ClientName + ": " + err.Error())
				if err := serverMgr.SendReply(svc, req.ClientName, rpctypes.StatusError, rpctypes.ResultError, nil); err != nil {
					log.Warn("rpc-server: failed to send error reply", zap.Error(err))
				}
				continue
			}
			sum := a + b
			fmt.Printf("%s %s: %d + %d = %d\n", green("OK"), req.ClientName, a, b, sum)
			if err := serverMgr.SendReply(svc, req.ClientName, rpctypes.StatusDone, rpctypes.ResultOK, []byte(strconv.Itoa(sum))); err != nil {
				log.Warn("rpc-server: failed to send reply", zap.Error(err))
			}

		case rpctypes.ServerEventRequestCancel:
			fmt.Println(yellow("CANCEL ") + req.ClientName)
			if err := serverMgr.SendCancelReply(svc, req.ClientName, nil); err != nil {
				log.Warn("rpc-server: failed to send cancel reply", zap.Error(err))
			}
		}
	}
}

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
