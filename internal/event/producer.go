package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/bookshelf/internal/domain"
	pkgkafka "github.com/utafrali/bookshelf/pkg/kafka"
	"github.com/utafrali/bookshelf/pkg/logger"
)

// Kafka topics for user lifecycle events.
const (
	TopicUserRegistered  = "bookshelf.user.registered"
	TopicUserRoleChanged = "bookshelf.user.role_changed"
	TopicUserDeleted     = "bookshelf.user.deleted"
)

const (
	aggregateTypeUser = "user"
	sourceAuthService = "bookshelf-auth"
)

// UserRegisteredData is the payload of a user.registered event.
type UserRegisteredData struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UserRoleChangedData is the payload of a user.role_changed event.
type UserRoleChangedData struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	ChangedBy string `json:"changed_by"`
}

// UserDeletedData is the payload of a user.deleted event.
type UserDeletedData struct {
	ID        string `json:"id"`
	DeletedBy string `json:"deleted_by"`
}

// Sink is the transport the producer writes to; *pkgkafka.Producer
// satisfies it.
type Sink interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer turns user lifecycle changes into Kafka events.
type Producer struct {
	sink   Sink
	logger *slog.Logger
}

// NewProducer creates a user event producer.
func NewProducer(sink Sink, logger *slog.Logger) *Producer {
	return &Producer{sink: sink, logger: logger}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserRegistered, user.ID.String(), UserRegisteredData{
		ID:    user.ID.String(),
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role.String(),
	})
}

// PublishUserRoleChanged publishes a user.role_changed event.
func (p *Producer) PublishUserRoleChanged(ctx context.Context, user *domain.User, changedBy string) error {
	return p.publish(ctx, TopicUserRoleChanged, user.ID.String(), UserRoleChangedData{
		ID:        user.ID.String(),
		Role:      user.Role.String(),
		ChangedBy: changedBy,
	})
}

// PublishUserDeleted publishes a user.deleted event.
func (p *Producer) PublishUserDeleted(ctx context.Context, userID, deletedBy string) error {
	return p.publish(ctx, TopicUserDeleted, userID, UserDeletedData{ID: userID, DeletedBy: deletedBy})
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateTypeUser, sourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	event.CorrelationID = logger.CorrelationIDFromContext(ctx)

	if err := p.sink.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published user event",
		slog.String("topic", topic),
		slog.String("user_id", aggregateID),
	)
	return nil
}

// Discard is a Sink that drops every event. It stands in when Kafka is
// disabled.
type Discard struct{}

// Publish implements Sink.
func (Discard) Publish(context.Context, string, *pkgkafka.Event) error { return nil }
