package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"presensi/internal/notify"
	"presensi/internal/queue"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var (
	ErrStudentNotFound = errors.New("student not found")
	ErrRecordNotFound  = errors.New("attendance record not found")
	ErrDuplicateRecord = errors.New("student already has a record for this date")
	ErrInvalidStatus   = errors.New("invalid attendance status")
	ErrInvalidChannel  = errors.New("invalid preferred channel")
	ErrInvalidStudent  = errors.New("nisn and name are required")
	ErrNoDispatcher    = errors.New("notification dispatcher not configured")
	ErrTelegramLinked  = errors.New("student is already linked to another telegram chat")
)

// Student is a roster entry together with its guardian contact fields.
type Student struct {
	NISN             string    `json:"nisn"`
	Name             string    `json:"name"`
	Class            string    `json:"class"`
	TelegramID       string    `json:"telegram_id"`
	WhatsAppNumber   string    `json:"whatsapp_number"`
	PreferredChannel string    `json:"preferred_channel"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Contact returns the guardian contact info used for channel selection.
func (s Student) Contact() notify.ContactInfo {
	return notify.ContactInfo{
		TelegramID:       s.TelegramID,
		WhatsAppNumber:   s.WhatsAppNumber,
		PreferredChannel: notify.Channel(s.PreferredChannel),
	}
}

func (s Student) notifyStudent() notify.Student {
	return notify.Student{Name: s.Name, NISN: s.NISN, Class: s.Class}
}

// Record is one student's attendance on one day.
type Record struct {
	ID        string    `json:"id"`
	NISN      string    `json:"nisn"`
	Status    string    `json:"status"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	DeviceID  string    `json:"device_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordFilter narrows ListRecords.
type RecordFilter struct {
	Date   string
	Class  string
	NISN   string
	Limit  int
	Offset int
}

// Delivery is the persisted outcome of notifying about one record.
type Delivery struct {
	RecordID string
	Channel  notify.Channel
	Result   notify.DeliveryResult
}

// Summary is the per-day dashboard figure for a class or the whole school.
type Summary struct {
	Date           string         `json:"date"`
	Class          string         `json:"class,omitempty"`
	Students       int            `json:"students"`
	Counts         map[string]int `json:"counts"`
	Unrecorded     int            `json:"unrecorded"`
	PresentPercent float64        `json:"present_percent"`
}

// Preview shows what a guardian would receive without sending anything.
type Preview struct {
	Channel  notify.Channel `json:"channel"`
	Telegram string         `json:"telegram"`
	WhatsApp string         `json:"whatsapp"`
}

// Store is the persistence the service needs.
type Store interface {
	UpsertDevice(ctx context.Context, deviceID string) error
	GetStudent(ctx context.Context, nisn string) (*Student, error)
	UpsertStudent(ctx context.Context, s Student) error
	ListStudents(ctx context.Context, class string) ([]Student, error)
	StudentsWithoutRecord(ctx context.Context, date string) ([]Student, error)
	SetTelegramID(ctx context.Context, nisn, chatID string) error
	RecordForDate(ctx context.Context, nisn, date string) (*Record, error)
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	GetRecord(ctx context.Context, id string) (Record, error)
	ListRecords(ctx context.Context, f RecordFilter) ([]Record, error)
	CountByStatus(ctx context.Context, date, class string) (map[string]int, error)
	SaveDelivery(ctx context.Context, d Delivery) error
}

// Publisher enqueues notification jobs.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Notifier delivers one attendance notification.
type Notifier interface {
	SendAttendanceNotification(ctx context.Context, n notify.Notification) notify.DeliveryResult
}

// Service coordinates check-ins, the roster and guardian notifications.
type Service struct {
	store    Store
	queue    Publisher
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
}

// NewService creates a service. notifier may be nil in processes that only
// enqueue work; loc defaults to UTC.
func NewService(store Store, q Publisher, notifier Notifier, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, queue: q, notifier: notifier, loc: loc, now: time.Now}
}

func (s *Service) today() (date, clock string) {
	t := s.now().In(s.loc)
	return t.Format(DateLayout), t.Format(TimeLayout)
}

// RegisterDevice validates and persists scanner device metadata.
func (s *Service) RegisterDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	return s.store.UpsertDevice(ctx, deviceID)
}

// CheckIn records today's attendance for nisn. status defaults to "hadir" and
// is stored as its Indonesian token. A second check-in on the same day returns
// the existing record with duplicate set and enqueues nothing.
func (s *Service) CheckIn(ctx context.Context, nisn, deviceID, status string) (rec Record, duplicate bool, err error) {
	nisn = strings.TrimSpace(nisn)
	if nisn == "" {
		return Record{}, false, ErrStudentNotFound
	}
	if status == "" {
		status = notify.StatusPresent.Token()
	}
	st, ok := notify.ParseStatus(status)
	if !ok {
		return Record{}, false, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	student, err := s.store.GetStudent(ctx, nisn)
	if err != nil {
		return Record{}, false, err
	}
	if student == nil {
		return Record{}, false, ErrStudentNotFound
	}

	date, clock := s.today()
	if existing, err := s.store.RecordForDate(ctx, nisn, date); err != nil {
		return Record{}, false, err
	} else if existing != nil {
		return *existing, true, nil
	}

	rec, err = s.store.InsertRecord(ctx, Record{
		NISN:     nisn,
		Status:   st.Token(),
		Date:     date,
		Time:     clock,
		DeviceID: deviceID,
	})
	if errors.Is(err, ErrDuplicateRecord) {
		// lost a race with a concurrent scan
		existing, ferr := s.store.RecordForDate(ctx, nisn, date)
		if ferr != nil || existing == nil {
			return Record{}, false, err
		}
		return *existing, true, nil
	}
	if err != nil {
		return Record{}, false, err
	}

	s.enqueue(ctx, rec.ID)
	return rec, false, nil
}

func (s *Service) enqueue(ctx context.Context, recordID string) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Publish(ctx, queue.Message{Type: queue.TypeNotify, Body: []byte(recordID)}); err != nil {
		log.Printf("attendance: queue publish for record %s failed: %v", recordID, err)
	}
}

// ProcessNotification notifies the guardian of the record's student on the
// best available channel and stores the outcome.
func (s *Service) ProcessNotification(ctx context.Context, recordID string) (notify.DeliveryResult, error) {
	if s.notifier == nil {
		return notify.DeliveryResult{}, ErrNoDispatcher
	}
	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return notify.DeliveryResult{}, fmt.Errorf("load record %s: %w", recordID, err)
	}
	student, err := s.store.GetStudent(ctx, rec.NISN)
	if err != nil {
		return notify.DeliveryResult{}, fmt.Errorf("load student %s: %w", rec.NISN, err)
	}
	if student == nil {
		return notify.DeliveryResult{}, fmt.Errorf("record %s: %w", recordID, ErrStudentNotFound)
	}

	contact := student.Contact()
	channel := notify.DetermineBestChannel(contact)
	var res notify.DeliveryResult
	if channel == notify.ChannelNone {
		log.Printf("attendance: no guardian contact for %s (%s), notification skipped", student.NISN, student.Name)
	} else {
		res = s.notifier.SendAttendanceNotification(ctx, notify.Notification{
			Student: student.notifyStudent(),
			Status:  rec.Status,
			Time:    rec.Time,
			Date:    rec.Date,
			Channel: channel,
			Contact: contact,
		})
	}

	if err := s.store.SaveDelivery(ctx, Delivery{RecordID: rec.ID, Channel: channel, Result: res}); err != nil {
		return res, fmt.Errorf("save delivery for %s: %w", rec.ID, err)
	}
	return res, nil
}

// SweepAbsent marks every student without a record today as absent ("alpha")
// and enqueues a notification for each. It returns how many were marked.
func (s *Service) SweepAbsent(ctx context.Context) (int, error) {
	date, clock := s.today()
	missing, err := s.store.StudentsWithoutRecord(ctx, date)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, st := range missing {
		rec, err := s.store.InsertRecord(ctx, Record{
			NISN:   st.NISN,
			Status: notify.StatusAbsent.Token(),
			Date:   date,
			Time:   clock,
		})
		if errors.Is(err, ErrDuplicateRecord) {
			continue
		}
		if err != nil {
			return marked, fmt.Errorf("mark %s absent: %w", st.NISN, err)
		}
		marked++
		s.enqueue(ctx, rec.ID)
	}
	return marked, nil
}

// UpsertStudent validates and stores a roster entry.
func (s *Service) UpsertStudent(ctx context.Context, st Student) (Student, error) {
	st.NISN = strings.TrimSpace(st.NISN)
	st.Name = strings.TrimSpace(st.Name)
	if st.NISN == "" || st.Name == "" {
		return Student{}, ErrInvalidStudent
	}
	if st.PreferredChannel != "" {
		if _, ok := notify.ParseChannel(st.PreferredChannel); !ok {
			return Student{}, fmt.Errorf("%w: %q", ErrInvalidChannel, st.PreferredChannel)
		}
	}
	if err := s.store.UpsertStudent(ctx, st); err != nil {
		return Student{}, err
	}
	return st, nil
}

// GetStudent returns a roster entry or ErrStudentNotFound.
func (s *Service) GetStudent(ctx context.Context, nisn string) (Student, error) {
	st, err := s.store.GetStudent(ctx, nisn)
	if err != nil {
		return Student{}, err
	}
	if st == nil {
		return Student{}, ErrStudentNotFound
	}
	return *st, nil
}

// ListStudents returns the roster, optionally for one class.
func (s *Service) ListStudents(ctx context.Context, class string) ([]Student, error) {
	return s.store.ListStudents(ctx, class)
}

// LinkTelegram stores a guardian's Telegram chat id for nisn. Relinking the
// same chat is a no-op; a student linked to another chat keeps it and
// ErrTelegramLinked is returned, so changing it goes through UpsertStudent.
func (s *Service) LinkTelegram(ctx context.Context, nisn, chatID string) error {
	nisn = strings.TrimSpace(nisn)
	chatID = strings.TrimSpace(chatID)
	if nisn == "" || chatID == "" {
		return ErrStudentNotFound
	}
	return s.store.SetTelegramID(ctx, nisn, chatID)
}

// ListRecords returns attendance records; an empty date means all dates.
func (s *Service) ListRecords(ctx context.Context, f RecordFilter) ([]Record, error) {
	return s.store.ListRecords(ctx, f)
}

// Summary computes per-status counts for date (today when empty).
func (s *Service) Summary(ctx context.Context, date, class string) (Summary, error) {
	if date == "" {
		date, _ = s.today()
	}
	students, err := s.store.ListStudents(ctx, class)
	if err != nil {
		return Summary{}, err
	}
	counts, err := s.store.CountByStatus(ctx, date, class)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Date: date, Class: class, Students: len(students), Counts: map[string]int{}}
	recorded := 0
	for _, token := range []string{"hadir", "sakit", "izin", "alpha"} {
		sum.Counts[token] = 0
	}
	for token, n := range counts {
		sum.Counts[token] += n
		recorded += n
	}
	if sum.Unrecorded = sum.Students - recorded; sum.Unrecorded < 0 {
		sum.Unrecorded = 0
	}
	if sum.Students > 0 {
		sum.PresentPercent = float64(sum.Counts[notify.StatusPresent.Token()]) * 100 / float64(sum.Students)
	}
	return sum, nil
}

// Preview formats the messages a guardian of nisn would receive.
func (s *Service) Preview(ctx context.Context, nisn, status, clock, date string) (Preview, error) {
	student, err := s.GetStudent(ctx, nisn)
	if err != nil {
		return Preview{}, err
	}
	if status == "" {
		status = notify.StatusPresent.Token()
	}
	if date == "" && clock == "" {
		date, clock = s.today()
	}
	ns := student.notifyStudent()
	return Preview{
		Channel:  notify.DetermineBestChannel(student.Contact()),
		Telegram: notify.FormatTelegram(ns, status, clock, date),
		WhatsApp: notify.FormatWhatsApp(ns, status, clock, date),
	}, nil
}
