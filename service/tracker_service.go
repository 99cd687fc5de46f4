package services

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/lib/pq"
	"gorm.io/gorm"

	model "github.com/afuentesm/NormaTrack/models"
)

// TrackerService holds the compliance tracking logic: requirement CRUD with
// real-time snapshots, evidence upload and review, and dashboard aggregation.
type TrackerService struct {
	db       *gorm.DB
	s3Client *s3.S3
	esClient *elasticsearch.Client
	listener *pq.Listener

	requirementHub *snapshotHub[model.Requirement]
	userHub        *snapshotHub[model.User]
}

// NewTrackerService initializes the service with the S3 evidence bucket, the
// Elasticsearch client and, on the Postgres path, a LISTEN/NOTIFY listener so
// external writers also trigger snapshot delivery. S3 and Elasticsearch are
// optional; when unconfigured the corresponding features degrade with a
// warning instead of blocking startup (the local-storage path has neither).
func NewTrackerService(db *gorm.DB) (*TrackerService, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}

	svc := &TrackerService{
		db:             db,
		requirementHub: newSnapshotHub[model.Requirement](),
		userHub:        newSnapshotHub[model.User](),
	}

	region := os.Getenv("SUPABASE_REGION")
	endpoint := os.Getenv("SUPABASE_S3_ENDPOINT")
	accessKey := os.Getenv("SUPABASE_ACCESS_KEY")
	secretKey := os.Getenv("SUPABASE_SECRET_KEY")
	if region != "" && endpoint != "" && accessKey != "" && secretKey != "" {
		sess, err := session.NewSession(&aws.Config{
			Region:           aws.String(region),
			Endpoint:         aws.String(endpoint),
			DisableSSL:       aws.Bool(false),
			Credentials:      credentials.NewStaticCredentials(accessKey, secretKey, ""),
			S3ForcePathStyle: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		svc.s3Client = s3.New(sess)
	} else {
		log.Println("Warning: S3 configuration incomplete, file evidence uploads disabled")
	}

	esURL := os.Getenv("ELASTICSEARCH_URL")
	if esURL != "" {
		esClient, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: []string{esURL},
		})
		if err != nil {
			log.Printf("Warning: Failed to create Elasticsearch client: %v", err)
		} else {
			svc.esClient = esClient
		}
	}

	if dsn := os.Getenv("DIRECT_URL"); dsn != "" {
		svc.listener = pq.NewListener(dsn, 10*time.Second, time.Minute,
			func(ev pq.ListenerEventType, err error) {
				if err != nil {
					log.Printf("[Listener] event %d: %v", ev, err)
				}
			})
		if err := svc.listener.Listen(requirementsChannel); err != nil {
			log.Printf("Warning: LISTEN on %s failed, push updates limited to this process: %v",
				requirementsChannel, err)
			svc.listener = nil
		} else {
			go svc.relayNotifications()
		}
	}

	return svc, nil
}

// requirementsChannel is the Postgres NOTIFY channel fired on every
// requirement mutation.
const requirementsChannel = "requirements_changed"

// relayNotifications turns Postgres notifications into fresh full-collection
// snapshots for every subscriber.
func (s *TrackerService) relayNotifications() {
	for range s.listener.Notify {
		if err := s.broadcastRequirements(); err != nil {
			log.Printf("[Listener] failed to broadcast snapshot: %v", err)
		}
	}
}

// notifyChange pings other processes listening on the same database. No-op
// when the listener path is not active (sqlite fallback).
func (s *TrackerService) notifyChange(id string) {
	if s.listener == nil {
		return
	}
	if err := s.db.Exec("SELECT pg_notify(?, ?)", requirementsChannel, id).Error; err != nil {
		log.Printf("[notifyChange] pg_notify failed: %v", err)
	}
}

// Close tears down the notification listener.
func (s *TrackerService) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
}

// snapshotHub fans full-collection snapshots out to subscribers. Each
// subscriber channel buffers exactly one snapshot; a slow consumer sees the
// latest state, never a backlog of stale ones.
type snapshotHub[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]chan []T
}

func newSnapshotHub[T any]() *snapshotHub[T] {
	return &snapshotHub[T]{subs: make(map[int]chan []T)}
}

func (h *snapshotHub[T]) subscribe() (<-chan []T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan []T, 1)
	h.subs[id] = ch
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (h *snapshotHub[T]) broadcast(snapshot []T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		// Drop the undelivered previous snapshot, then deliver the new one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}
