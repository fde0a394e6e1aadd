package external

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/config"
)

// Event is a domain notification published after a workflow commits.
// Delivery is best effort: a failed publish never rolls back the operation
// that produced it.
type Event struct {
	Tipo      string                 `json:"tipo"`
	UserID    string                 `json:"user_id,omitempty"`
	AuctionID string                 `json:"auction_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Event types emitted by the workflows
const (
	EventPagoRegistrado     = "pago_registrado"
	EventPagoValidado       = "pago_validado"
	EventPagoRechazado      = "pago_rechazado"
	EventGanadorAsignado    = "ganador_asignado"
	EventGanadorReasignado  = "ganador_reasignado"
	EventSubastaVencida     = "subasta_vencida"
	EventResultadoCompeten  = "resultado_competencia"
	EventReembolsoCreado    = "reembolso_solicitado"
	EventReembolsoGestion   = "reembolso_gestionado"
	EventReembolsoProcesado = "reembolso_procesado"
	EventFacturacionCreada  = "facturacion_creada"
)

type Notifier interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type rabbitNotifier struct {
	cfg  config.RabbitMQConfig
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex
}

// NewRabbitNotifier connects to RabbitMQ and declares the events exchange
func NewRabbitNotifier(cfg config.RabbitMQConfig) (Notifier, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Dial: amqp.DefaultDial(cfg.ConnectionTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := ch.QueueDeclare(cfg.NotificationQueue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(queue.Name, "#", cfg.Exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &rabbitNotifier{cfg: cfg, conn: conn, ch: ch}, nil
}

func (n *rabbitNotifier) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	err = n.ch.PublishWithContext(ctx, n.cfg.Exchange, event.Tipo, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"tipo":    event.Tipo,
		"user_id": event.UserID,
	}).Debug("Event published")

	return nil
}

func (n *rabbitNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ch != nil {
		n.ch.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}

// NoopNotifier discards events. Used when RabbitMQ is disabled and in tests.
type NoopNotifier struct{}

func (NoopNotifier) Publish(ctx context.Context, event Event) error { return nil }
func (NoopNotifier) Close() error                                   { return nil }
