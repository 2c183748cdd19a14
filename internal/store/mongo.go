package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// MongoConfig MongoDB 连接配置
type MongoConfig struct {
	URI                    string        `yaml:"uri" env:"URI"`
	Database               string        `yaml:"database" env:"DATABASE"`
	ServerSelectionTimeout time.Duration `yaml:"server_selection_timeout" env:"SERVER_SELECTION_TIMEOUT"`
}

const (
	collCustomers = "customers"
	collNotes     = "customer_notes"
	collChatLogs  = "chat_logs"
)

// MongoStore 文档数据库实现，集合名与 SQL 表名一致.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
	now    func() time.Time
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore 创建客户端。驱动延迟建连，服务不可达时在首次操作或 Ping 时报错.
func NewMongoStore(cfg MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri not configured")
	}
	if cfg.Database == "" {
		cfg.Database = "mogul"
	}
	if cfg.ServerSelectionTimeout <= 0 {
		cfg.ServerSelectionTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
		SetAppName("mogul-agent")
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &MongoStore{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger.With(zap.String("component", "store"), zap.String("backend", "mongo")),
		now:    time.Now,
	}, nil
}

// EnsureIndexes 创建查询所需索引，可重复执行.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collCustomers).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}},
		{Keys: bson.D{{Key: "phone", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create customer indexes: %w", err)
	}
	_, err = s.db.Collection(collNotes).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create note indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Name() string { return "mongo" }

func (s *MongoStore) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	return s.findCustomer(ctx, bson.D{{Key: "email", Value: email}})
}

func (s *MongoStore) FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error) {
	return s.findCustomer(ctx, bson.D{{Key: "phone", Value: phone}})
}

func (s *MongoStore) findCustomer(ctx context.Context, filter bson.D) (*Customer, error) {
	var c Customer
	err := s.db.Collection(collCustomers).
		FindOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})).
		Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}
	return &c, nil
}

func (s *MongoStore) UpsertCustomer(ctx context.Context, c *Customer) error {
	now := s.now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "name", Value: c.Name},
			{Key: "email", Value: c.Email},
			{Key: "phone", Value: c.Phone},
			{Key: "company", Value: c.Company},
			{Key: "updated_at", Value: c.UpdatedAt},
		}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: c.CreatedAt}}},
	}
	_, err := s.db.Collection(collCustomers).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: c.ID}}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

func (s *MongoStore) AddNote(ctx context.Context, n *Note) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	if _, err := s.db.Collection(collNotes).InsertOne(ctx, n); err != nil {
		return fmt.Errorf("add note: %w", err)
	}
	_, err := s.db.Collection(collCustomers).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: n.CustomerID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "updated_at", Value: n.CreatedAt}}}})
	if err != nil {
		// 笔记已写入，刷新时间失败不影响结果
		s.logger.Warn("touch customer failed", zap.String("customer_id", n.CustomerID), zap.Error(err))
	}
	return nil
}

func (s *MongoStore) ListNotes(ctx context.Context, customerID string, limit int) ([]Note, error) {
	cur, err := s.db.Collection(collNotes).Find(ctx,
		bson.D{{Key: "customer_id", Value: customerID}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(noteLimit(limit))))
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	notes := []Note{}
	if err := cur.All(ctx, &notes); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

func (s *MongoStore) SaveChatLog(ctx context.Context, l *ChatLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now().UTC()
	}
	if _, err := s.db.Collection(collChatLogs).InsertOne(ctx, l); err != nil {
		return fmt.Errorf("save chat log: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
