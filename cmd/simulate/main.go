package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/api"
	"github.com/loramulaku/LABcourse-sub002/internal/app"
	"github.com/loramulaku/LABcourse-sub002/internal/logger"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	"github.com/loramulaku/LABcourse-sub002/internal/store/memstore"
)

type SimConfig struct {
	APIBaseURL string // empty runs an in-process server on the memory store
	Duration   time.Duration
	Workers    int
	Doctors    int
	Slots      int // per doctor
	PayRatio   float64
	ReadRatio  float64
}

type DataPool struct {
	Doctors  []uuid.UUID
	Patients []uuid.UUID
	Times    []time.Time

	mu       sync.RWMutex
	bookings []uuid.UUID
}

func (dp *DataPool) AddBooking(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, id)
}

func (dp *DataPool) RandomBooking(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.bookings) == 0 {
		return uuid.Nil, false
	}
	return dp.bookings[rng.Intn(len(dp.bookings))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[len(latencies)*95/100]
	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking  OperationMetrics
	Payment  OperationMetrics
	Confirm  OperationMetrics
	ReadByID OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     *zap.Logger
}

// simGateway opens sessions locally so the payment flow runs without a provider.
type simGateway struct{}

func (simGateway) CreateSession(_ context.Context, req payment.SessionRequest) (payment.Session, error) {
	return payment.Session{Reference: req.IdempotencyKey, RedirectURL: "https://pay.invalid/" + req.IdempotencyKey}, nil
}

func (simGateway) Status(context.Context, string) (payment.Outcome, error) {
	return payment.OutcomePending, nil
}

func main() {
	log, err := logger.New("dev", getEnv("LOG_LEVEL", "warn"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg := loadConfig()
	if cfg.Workers <= 0 || cfg.Duration <= 0 || cfg.Doctors <= 0 || cfg.Slots <= 0 {
		log.Fatal("SIM_WORKERS, SIM_DURATION, SIM_DOCTORS and SIM_SLOTS must be > 0")
	}

	if cfg.APIBaseURL == "" {
		srv := startInProcess(log)
		defer srv.Close()
		cfg.APIBaseURL = srv.URL
	}

	sim := &Simulator{
		config: cfg,
		pool:   newDataPool(cfg),
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	sim.Run()
	sim.PrintReport()

	if err := sim.VerifySlots(); err != nil {
		log.Fatal("slot invariant violated", zap.Error(err))
	}
	fmt.Println("slot invariant holds: at most one active booking per (doctor, time)")
}

func startInProcess(log *zap.Logger) *httptest.Server {
	store := memstore.New()
	svc := app.NewServices(app.Deps{Store: store, Gateway: simGateway{}, Log: log}, app.Options{
		RequirePaymentForConfirm: true,
	})
	router := api.NewRouter(api.RouterConfig{
		Allocator:     svc.Allocator,
		Machine:       svc.Machine,
		Reconciler:    svc.Reconciler,
		Care:          svc.Care,
		Reviewer:      svc.Reviewer,
		Ledger:        svc.Ledger,
		Logger:        log,
		SystemActorID: uuid.New(),
		Store:         store,
		Env:           "sim",
	})
	return httptest.NewServer(router)
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL: os.Getenv("SIM_API_BASE_URL"),
		Duration:   getDuration("SIM_DURATION", 10*time.Second),
		Workers:    getInt("SIM_WORKERS", 16),
		Doctors:    getInt("SIM_DOCTORS", 5),
		Slots:      getInt("SIM_SLOTS", 20),
		PayRatio:   getFloat("SIM_PAY_RATIO", 0.3),
		ReadRatio:  getFloat("SIM_READ_RATIO", 0.2),
	}
	return cfg
}

func newDataPool(cfg SimConfig) *DataPool {
	dp := &DataPool{}
	for i := 0; i < cfg.Doctors; i++ {
		dp.Doctors = append(dp.Doctors, uuid.New())
	}
	for i := 0; i < cfg.Workers*10; i++ {
		dp.Patients = append(dp.Patients, uuid.New())
	}
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	for i := 0; i < cfg.Slots; i++ {
		dp.Times = append(dp.Times, start.Add(time.Duration(i)*30*time.Minute))
	}
	return dp
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Warn("simulation started", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.PayRatio:
			s.doPayAndConfirm(ctx, rng)
		case r < s.config.PayRatio+s.config.ReadRatio:
			s.doReadByID(ctx, rng)
		default:
			s.doBooking(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	body := map[string]any{
		"doctor_id":    s.pool.Doctors[rng.Intn(len(s.pool.Doctors))],
		"requester_id": s.pool.Patients[rng.Intn(len(s.pool.Patients))],
		"scheduled_at": s.pool.Times[rng.Intn(len(s.pool.Times))],
		"reason":       "simulated visit",
	}

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	start := time.Now()
	status, err := s.post(ctx, "/bookings", body, &created)
	s.metrics.Booking.Record(time.Since(start), status, err)

	if err == nil && status == http.StatusCreated {
		s.pool.AddBooking(created.ID)
	}
}

// doPayAndConfirm opens an intent, delivers the paid callback and confirms.
func (s *Simulator) doPayAndConfirm(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	var intent struct {
		SessionReference string `json:"session_reference"`
	}
	start := time.Now()
	status, err := s.post(ctx, "/payments/intents", map[string]any{
		"booking_id": id,
		"amount":     150000,
		"currency":   "IDR",
	}, &intent)
	if err == nil && status < 300 {
		status, err = s.post(ctx, "/payments/callback", map[string]any{
			"session_reference": intent.SessionReference,
			"outcome":           "paid",
		}, nil)
	}
	s.metrics.Payment.Record(time.Since(start), status, err)
	if err != nil || status >= 300 {
		return
	}

	start = time.Now()
	status, err = s.post(ctx, "/bookings/"+id.String()+"/transition", map[string]any{
		"target_status": "CONFIRMED",
		"actor_id":      s.pool.Doctors[0],
	}, nil)
	s.metrics.Confirm.Record(time.Since(start), status, err)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.get(ctx, "/bookings/"+id.String(), nil)
	s.metrics.ReadByID.Record(time.Since(start), status, err)
}

// VerifySlots reads back every doctor's bookings and checks slot uniqueness.
func (s *Simulator) VerifySlots() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	from := s.pool.Times[0].Add(-time.Minute).Format(time.RFC3339)
	to := s.pool.Times[len(s.pool.Times)-1].Add(time.Minute).Format(time.RFC3339)

	for _, doctor := range s.pool.Doctors {
		var bookings []api.BookingResponse
		path := fmt.Sprintf("/doctors/%s/bookings?from=%s&to=%s", doctor, from, to)
		if _, err := s.get(ctx, path, &bookings); err != nil {
			return err
		}

		active := make(map[time.Time]int)
		for _, b := range bookings {
			if b.Status == "CANCELLED" || b.Status == "DECLINED" {
				continue
			}
			active[b.ScheduledAt.UTC()]++
			if active[b.ScheduledAt.UTC()] > 1 {
				return fmt.Errorf("doctor %s has %d active bookings at %s", doctor, active[b.ScheduledAt.UTC()], b.ScheduledAt)
			}
		}
	}
	return nil
}

func (s *Simulator) post(ctx context.Context, path string, body any, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, out)
}

func (s *Simulator) get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)
	if err != nil {
		return 0, err
	}
	return s.do(req, out)
}

func (s *Simulator) do(req *http.Request, out any) (int, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d  Doctors: %d  Slots per doctor: %d\n", s.config.Workers, s.config.Doctors, s.config.Slots)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Payment", &s.metrics.Payment)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Microsecond), min.Round(time.Microsecond), max.Round(time.Microsecond),
		p50.Round(time.Microsecond), p95.Round(time.Microsecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
