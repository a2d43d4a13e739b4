package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/KorensAI/openclaw-mission-control/api"
	"github.com/KorensAI/openclaw-mission-control/config"
	"github.com/KorensAI/openclaw-mission-control/gateway"
	"github.com/KorensAI/openclaw-mission-control/protocol"
	"github.com/KorensAI/openclaw-mission-control/state"
)

const MissionCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `OpenClaw mission control.

The default endpoints are the local daemon:
    gateway_url: ws://127.0.0.1:18789/ws
    api_url: http://127.0.0.1:18789

Usage:
    missionctl status [--config=<config>]
    missionctl agents [--config=<config>]
    missionctl tasks [--config=<config>]
    missionctl create-task [--config=<config>] --title=<title>
        [--description=<description>]
        [--agent=<agent_id>]
        [--priority=<priority>]
    missionctl watch [--config=<config>] [--message_count=<message_count>]
    missionctl send [--config=<config>] --type=<type> [<payload>]
    missionctl whoami [--config=<config>]

Options:
    -h --help                        Show this screen.
    --version                        Show version.
    --config=<config>                Config path [default: ~/.openclaw/mission-control.yml].
    --title=<title>                  Task title.
    --description=<description>      Task description.
    --agent=<agent_id>               Assignee agent id.
    --priority=<priority>            Task priority.
    --type=<type>                    Outbound event type.
    --message_count=<message_count>  Print this many messages then exit.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], MissionCtlVersion)
	if err != nil {
		panic(err)
	}

	if status_, _ := opts.Bool("status"); status_ {
		status(opts)
	} else if agents_, _ := opts.Bool("agents"); agents_ {
		agents(opts)
	} else if tasks_, _ := opts.Bool("tasks"); tasks_ {
		tasks(opts)
	} else if createTask_, _ := opts.Bool("create-task"); createTask_ {
		createTask(opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		watch(opts)
	} else if send_, _ := opts.Bool("send"); send_ {
		send(opts)
	} else if whoami_, _ := opts.Bool("whoami"); whoami_ {
		whoami(opts)
	}
}

func loadConfig(opts docopt.Opts) *config.Config {
	path, _ := opts.String("--config")
	cfg, err := config.LoadConfig(resolveConfigPath(path))
	if err != nil {
		Err.Fatalf("config error = %s\n", err)
	}
	return cfg
}

// resolveConfigPath expands a leading ~/ against the home directory, which
// also covers the usage-string default. Empty falls back to the standard
// location.
func resolveConfigPath(path string) string {
	if path == "" {
		return config.DefaultPath()
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func controlApi(cfg *config.Config) *api.ControlApi {
	controlApi := api.NewControlApi(cfg.ApiUrl)
	controlApi.SetAuthToken(cfg.AuthToken)
	return controlApi
}

func status(opts docopt.Opts) {
	cfg := loadConfig(opts)
	dashboard, err := controlApi(cfg).GetDashboardSync()
	if err != nil {
		Err.Fatalf("dashboard error = %s\n", err)
	}
	Out.Printf("agents: %d\n", dashboard.AgentCount)
	Out.Printf("active sessions: %d\n", dashboard.ActiveSessions)
	Out.Printf("tasks open: %d\n", dashboard.TasksOpen)
	Out.Printf("tasks done: %d\n", dashboard.TasksDone)
	Out.Printf("cost today: $%.4f\n", dashboard.CostToday)
}

func agents(opts docopt.Opts) {
	cfg := loadConfig(opts)
	agents, err := controlApi(cfg).GetAgentsSync()
	if err != nil {
		Err.Fatalf("agents error = %s\n", err)
	}
	for _, agent := range agents {
		Out.Printf("%s %s %s tokens=%d cost=$%.4f\n", agent.Id, agent.Status, agent.CurrentTask, agent.TokensUsed, agent.CostToday)
	}
}

func tasks(opts docopt.Opts) {
	cfg := loadConfig(opts)
	tasks, err := controlApi(cfg).GetTasksSync()
	if err != nil {
		Err.Fatalf("tasks error = %s\n", err)
	}
	for _, task := range tasks {
		Out.Printf("%s [%s] %s agent=%s\n", task.Id, task.Status, task.Title, task.AgentId)
	}
}

func createTask(opts docopt.Opts) {
	cfg := loadConfig(opts)
	title, _ := opts.String("--title")
	description, _ := opts.String("--description")
	agentId, _ := opts.String("--agent")
	priority, _ := opts.String("--priority")

	task, err := controlApi(cfg).CreateTaskSync(&api.CreateTaskArgs{
		Title:       title,
		Description: description,
		AgentId:     agentId,
		Priority:    priority,
	})
	if err != nil {
		Err.Fatalf("create task error = %s\n", err)
	}
	Out.Printf("%s [%s] %s\n", task.Id, task.Status, task.Title)
}

func newConnection(ctx context.Context, cfg *config.Config) *gateway.GatewayConnection {
	auth := &gateway.ClientAuth{
		Token:      cfg.AuthToken,
		InstanceId: gateway.NewId(),
		AppVersion: MissionCtlVersion,
	}
	return gateway.NewGatewayConnection(ctx, cfg.GatewayUrl, auth, cfg.ConnectionSettings())
}

func watch(opts docopt.Opts) {
	cfg := loadConfig(opts)

	messageCount := -1
	if messageCount_, err := opts.Int("--message_count"); err == nil {
		messageCount = messageCount_
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connection := newConnection(ctx, cfg)
	defer connection.Close()

	store := state.NewStore()
	bridge := state.NewBridge(connection, store)
	defer bridge.Close()

	if err := controlApi(cfg).HydrateStore(store); err != nil {
		Err.Printf("hydrate error = %s (continuing without initial state)\n", err)
	}

	messages := make(chan *protocol.Envelope, 64)
	unsubscribeMessage := connection.On(gateway.EventTypeMessage, func(payload any) {
		if envelope, ok := payload.(*protocol.Envelope); ok {
			select {
			case messages <- envelope:
			default:
				// viewer lagging, drop for display only. The bridge applied it.
			}
		}
	})
	defer unsubscribeMessage()

	unsubscribeState := gateway.Subscribe(connection, gateway.EventTypeStateChange, func(event *gateway.StateChangeEvent) {
		Out.Printf("-- %s\n", event.State)
	})
	defer unsubscribeState()

	connection.Connect()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	printed := 0
	for {
		select {
		case <-sig:
			return
		case envelope := <-messages:
			Out.Printf("%s %s %s\n", envelope.Timestamp, envelope.Type, string(envelope.Payload))
			printed += 1
			if 0 <= messageCount && messageCount <= printed {
				Out.Printf("active sessions: %d, agents: %d, logs: %d\n",
					store.ActiveSessions(), len(store.Agents()), len(store.Logs()))
				return
			}
		}
	}
}

func send(opts docopt.Opts) {
	cfg := loadConfig(opts)
	eventType, _ := opts.String("--type")

	var payload any
	if payload_, err := opts.String("<payload>"); err == nil && payload_ != "" {
		raw := json.RawMessage{}
		if err := json.Unmarshal([]byte(payload_), &raw); err != nil {
			Err.Fatalf("payload must be json: %s\n", err)
		}
		payload = raw
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connection := newConnection(ctx, cfg)
	defer connection.Close()

	connected := make(chan struct{}, 1)
	unsubscribe := gateway.Subscribe(connection, gateway.EventTypeConnect, func(event *gateway.ConnectEvent) {
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	connection.Connect()

	select {
	case <-connected:
	case <-time.After(10 * time.Second):
		Err.Fatalf("connect timeout\n")
	}

	connection.Send(eventType, payload)
	// give the write a moment before tearing the socket down
	time.Sleep(200 * time.Millisecond)
	connection.Disconnect()
}

func whoami(opts docopt.Opts) {
	cfg := loadConfig(opts)
	if cfg.AuthToken == "" {
		Out.Printf("no auth token configured\n")
		return
	}
	claims, err := gateway.ParseOperatorUnverified(cfg.AuthToken)
	if err != nil {
		Err.Fatalf("token parse error = %s\n", err)
	}
	Out.Printf("operator: %s\n", claims.OperatorId)
	if claims.Name != "" {
		Out.Printf("name: %s\n", claims.Name)
	}
	if claims.ExpiresAt != nil {
		Out.Printf("expires: %s\n", claims.ExpiresAt.Format(time.RFC3339))
	}
}
