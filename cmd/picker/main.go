package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"separation-service/config"
	"separation-service/internal/apiclient"
	"separation-service/internal/channel"
	"separation-service/internal/models"
	"separation-service/internal/presence"
	"separation-service/internal/separation"
	"separation-service/internal/util"
)

// consoleNotifier prints operator notifications to the terminal
type consoleNotifier struct{}

func (consoleNotifier) Success(msg string) { fmt.Printf("✔ %s\n", msg) }
func (consoleNotifier) Error(msg string)   { fmt.Printf("✖ %s\n", msg) }

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "uso: picker <order_id>")
		os.Exit(1)
	}
	orderID, err := strconv.ParseInt(os.Args[1], 10, 64)
	if err != nil {
		fmt.Fprintln(os.Stderr, "uso: picker <order_id>")
		os.Exit(1)
	}

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	client := apiclient.NewClient(cfg.Sync.BaseURL, cfg.Sync.Token)
	session := separation.NewSession(orderID, client, consoleNotifier{},
		separation.WithRetries(cfg.Sync.UpdateRetries),
		separation.WithRetryUnit(cfg.Sync.RetryUnit))

	router := channel.NewRouter()
	session.Attach(router)
	registry := presence.NewRegistry()
	registry.Attach(router)

	ch := channel.New(channel.Options{
		URL:          wsURL(cfg, orderID),
		OrderID:      orderID,
		Router:       router,
		OnStatus:     statusPrinter(session),
		BackoffBase:  cfg.Sync.ReconnectBase,
		BackoffCap:   cfg.Sync.ReconnectCap,
		MaxAttempts:  cfg.Sync.MaxReconnectAttempts,
		PingInterval: 30 * time.Second,
	})
	defer ch.Disconnect()

	ctx := context.Background()
	if err := session.FetchOrderDetails(ctx); err != nil {
		os.Exit(1)
	}
	if users, err := client.ActiveUsers(ctx, orderID); err == nil {
		registry.ReplaceOrder(orderID, users)
	}
	_ = ch.Connect(ctx)

	printOrder(session)
	repl(ctx, session, registry, orderID)
}

func wsURL(cfg *config.Config, orderID int64) string {
	q := url.Values{}
	q.Set("token", cfg.Sync.Token)
	q.Set("user_id", strconv.FormatInt(cfg.Sync.UserID, 10))
	q.Set("user_name", cfg.Sync.UserName)
	q.Set("role", cfg.Sync.Role)
	return cfg.Sync.WSURL + "?" + q.Encode()
}

func statusPrinter(session *separation.Session) channel.StatusFunc {
	return func(state channel.State, err error) {
		session.HandleStatus(state, err)
		if state == channel.StateOpen {
			fmt.Printf("· %s\n", separation.LabelConnected)
		}
	}
}

func repl(ctx context.Context, session *separation.Session, registry *presence.Registry, orderID int64) {
	fmt.Println("comandos: lista | sep <item> | des <item> | compra <item> | naoenv <item> | pend <item> | concluir | quem | sair")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("[%s] > ", session.ConnectionLabel())
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "lista":
			printOrder(session)
		case "sep":
			updateFlag(ctx, session, fields, models.ItemUpdate{Separated: models.Bool(true)})
		case "des":
			updateFlag(ctx, session, fields, models.ItemUpdate{Separated: models.Bool(false)})
		case "compra":
			updateFlag(ctx, session, fields, models.ItemUpdate{SentToPurchase: models.Bool(true)})
		case "naoenv":
			updateFlag(ctx, session, fields, models.ItemUpdate{NotSent: models.Bool(true)})
		case "pend":
			updateFlag(ctx, session, fields, models.ItemUpdate{NotSent: models.Bool(false)})
		case "concluir":
			if !session.CanComplete() {
				fmt.Println("✖ O pedido ainda possui itens pendentes")
				continue
			}
			_ = session.CompleteOrder(ctx)
		case "quem":
			for _, u := range registry.ActiveUsers(orderID) {
				fmt.Printf("  %s (%s)\n", u.UserName, u.Role)
			}
		case "sair":
			return
		default:
			fmt.Println("comando desconhecido")
		}
	}
}

func updateFlag(ctx context.Context, session *separation.Session, fields []string, change models.ItemUpdate) {
	if len(fields) < 2 {
		fmt.Println("informe o id do item")
		return
	}
	itemID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		fmt.Println("id de item inválido")
		return
	}
	_ = session.UpdateItem(ctx, itemID, change)
}

func printOrder(session *separation.Session) {
	order, items, ok := session.Snapshot()
	if !ok {
		fmt.Println("pedido ainda não carregado")
		return
	}

	fmt.Printf("Pedido %s — %s (%.0f%%)\n", order.OrderNumber, order.ClientName, order.Progress)
	for _, it := range items {
		fmt.Printf("  [%s] %-4d %s x%d\n", stateLabel(it.State()), it.ID, it.ProductName, it.Quantity)
	}
}

func stateLabel(state models.ItemState) string {
	switch state {
	case models.ItemStateSeparated:
		return "SEP"
	case models.ItemStateSentToPurchase:
		return "CMP"
	case models.ItemStateNotSent:
		return "N/E"
	default:
		return "   "
	}
}
