package telemetry

import (
	"context"
	"sync"
	"time"

	"zone-detection-console/internal/logger"
	"zone-detection-console/internal/metrics"
	"zone-detection-console/internal/models"

	"go.uber.org/zap"
)

// Snapshot - копия текущего состояния агрегатора
type Snapshot struct {
	Recent  []models.StatsData  `json:"recent_telemetries"`
	Average []models.StatsData  `json:"average_bar_series"`
	Latest  *models.StreamFrame `json:"latest,omitempty"`
}

// Option настраивает Aggregator
type Option func(*Aggregator)

// WithClock подменяет источник времени (для тестов)
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithWindow задает окно усреднения
func WithWindow(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.window = d
		}
	}
}

// WithHistory задает глубину усредненной серии
func WithHistory(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.history = d
		}
	}
}

// WithRecentSize задает размер очереди последних телеметрий
func WithRecentSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.recentSize = n
		}
	}
}

// WithOnTick вызывается после каждого нового усредненного значения
func WithOnTick(fn func(Snapshot)) Option {
	return func(a *Aggregator) {
		a.onTick = fn
	}
}

// Aggregator превращает поток детекций в две серии: последние N телеметрий
// и средние значения по окнам фиксированной длины за последний час
type Aggregator struct {
	mu sync.Mutex

	now        func() time.Time
	window     time.Duration
	history    time.Duration
	recentSize int
	onTick     func(Snapshot)

	rearm chan struct{} // якорь сдвинулся, Run перезаводит таймер

	deviceID string
	active   bool
	anchor   time.Time          // начало текущего окна
	pending  []models.StatsData // события текущего окна
	recent   []models.StatsData
	average  []models.StatsData
	latest   *models.StreamFrame
}

// NewAggregator создает агрегатор со значениями по умолчанию
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		now:        time.Now,
		window:     models.AveragingWindow,
		history:    models.HistoryTimeLength,
		recentSize: models.RecentTelemetrySize,
		rearm:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.anchor = a.now()
	return a
}

// maxSeries - сколько окон помещается в историю
func (a *Aggregator) maxSeries() int {
	if a.window == models.AveragingWindow && a.history == models.HistoryTimeLength {
		return models.MaxAverageSeriesSize
	}
	return int(a.history / a.window)
}

// Run закрывает окна по таймеру до отмены контекста. Таймер всегда
// заведен на конец текущего окна (anchor + window).
func (a *Aggregator) Run(ctx context.Context) {
	timer := time.NewTimer(a.untilClose())
	defer timer.Stop()

	logger.Log().Info("📈 Агрегатор телеметрии запущен", zap.Duration("window", a.window))
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("Агрегатор телеметрии остановлен")
			return
		case <-a.rearm:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
			a.Tick(a.now())
		}
		timer.Reset(a.untilClose())
	}
}

// untilClose - время до конца текущего окна
func (a *Aggregator) untilClose() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active && len(a.pending) == 0 {
		return a.window
	}
	if d := a.anchor.Add(a.window).Sub(a.now()); d > 0 {
		return d
	}
	return 0
}

// moveAnchorLocked начинает новое окно с текущего момента
func (a *Aggregator) moveAnchorLocked() {
	a.anchor = a.now()
	select {
	case a.rearm <- struct{}{}:
	default:
	}
}

// OnEvent добавляет событие активного устройства. Возвращает false, если событие отброшено.
func (a *Aggregator) OnEvent(deviceID string, payload models.Inference, timestamp string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addEvent(deviceID, payload, timestamp)
}

// OnFrame - OnEvent для кадра потока; принятый кадр становится последним
func (a *Aggregator) OnFrame(frame models.StreamFrame) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.addEvent(frame.DeviceID, frame.Inference, frame.Timestamp) {
		metrics.StreamFrames.WithLabelValues("dropped").Inc()
		return false
	}
	metrics.StreamFrames.WithLabelValues("accepted").Inc()
	latest := frame
	a.latest = &latest
	return true
}

func (a *Aggregator) addEvent(deviceID string, payload models.Inference, timestamp string) bool {
	if deviceID != a.deviceID || !a.active {
		return false
	}

	entry := models.StatsData{
		Timestamp:          timestamp,
		NumberOfDetections: float64(CountObjectsInZone(payload.Perception.ObjectDetectionList)),
	}
	a.recent = append(a.recent, entry)
	if over := len(a.recent) - a.recentSize; over > 0 {
		a.recent = append([]models.StatsData(nil), a.recent[over:]...)
	}
	a.pending = append(a.pending, entry)
	return true
}

// Tick закрывает текущее окно на момент now. До конца окна ничего не делает.
func (a *Aggregator) Tick(now time.Time) {
	a.mu.Lock()

	// при остановленном потоке без событий ничего не делаем, иначе
	// простой заполнил бы историю нулями
	if !a.active && len(a.pending) == 0 {
		a.mu.Unlock()
		return
	}

	closeAt := a.anchor.Add(a.window)
	if now.Before(closeAt) {
		a.mu.Unlock()
		return
	}

	// таймер отстал: переносим якорь на последнее целое окно до now
	if behind := now.Sub(a.anchor); behind >= 2*a.window {
		skipped := int(behind/a.window) - 1
		a.anchor = a.anchor.Add(time.Duration(skipped) * a.window)
		closeAt = a.anchor.Add(a.window)
	}

	a.fillSkipped(closeAt)
	a.cutBefore(a.anchor.Add(-a.history))
	a.average = append(a.average, models.StatsData{
		Timestamp:          FormatTimestamp(closeAt),
		NumberOfDetections: ComputeAverage(a.pending),
	})
	if over := len(a.average) - a.maxSeries(); over > 0 {
		a.average = append([]models.StatsData(nil), a.average[over:]...)
	}
	a.pending = nil
	if a.active {
		a.anchor = closeAt
	}
	metrics.AverageSeriesLength.Set(float64(len(a.average)))

	var snapshot Snapshot
	onTick := a.onTick
	if onTick != nil {
		snapshot = a.snapshotLocked()
	}
	a.mu.Unlock()

	if onTick != nil {
		onTick(snapshot)
	}
}

// fillSkipped добавляет нулевые значения за окна без событий
func (a *Aggregator) fillSkipped(closeAt time.Time) {
	if len(a.average) == 0 {
		return
	}
	last, err := ParseTimestamp(a.average[len(a.average)-1].Timestamp)
	if err != nil {
		logger.Log().Warn("битая метка времени в серии", zap.Error(err))
		return
	}
	missing := int(closeAt.Sub(last)/a.window) - 1
	for i := 1; i <= missing; i++ {
		a.average = append(a.average, models.StatsData{
			Timestamp: FormatTimestamp(last.Add(time.Duration(i) * a.window)),
		})
	}
}

// cutBefore удаляет значения старше cutoff
func (a *Aggregator) cutBefore(cutoff time.Time) {
	kept := a.average[:0]
	for _, entry := range a.average {
		ts, err := ParseTimestamp(entry.Timestamp)
		if err != nil || ts.Before(cutoff) {
			continue
		}
		kept = append(kept, entry)
	}
	a.average = kept
}

// SetActive включает или выключает сбор. Включение начинает новое окно с текущего момента.
func (a *Aggregator) SetActive(active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if active && !a.active {
		a.moveAnchorLocked()
	}
	a.active = active
}

// SetDevice меняет активное устройство и очищает серии
func (a *Aggregator) SetDevice(deviceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.deviceID = deviceID
	a.resetLocked()
}

// Reset очищает серии и начинает окно заново
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}

func (a *Aggregator) resetLocked() {
	a.pending = nil
	a.recent = nil
	a.average = nil
	a.latest = nil
	a.moveAnchorLocked()
	metrics.AverageSeriesLength.Set(0)
}

// Snapshot возвращает копии серий и последний кадр
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Snapshot {
	s := Snapshot{
		Recent:  append([]models.StatsData{}, a.recent...),
		Average: append([]models.StatsData{}, a.average...),
	}
	if a.latest != nil {
		latest := *a.latest
		s.Latest = &latest
	}
	return s
}
