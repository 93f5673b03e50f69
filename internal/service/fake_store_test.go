package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"lab-scheduler-api/internal/model"
	"lab-scheduler-api/internal/repository"
)

// fakeStore is an in-memory repository.Store. WithTx serializes
// transactions and restores the previous state when fn fails.
type fakeStore struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	nextID int64

	computers map[int64]model.Computer
	students  map[int64]model.Student
	users     map[int64]model.User
	bookings  map[int64]model.Booking

	// failWith, when set, is returned by the next repository call.
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		computers: map[int64]model.Computer{},
		students:  map[int64]model.Student{},
		users:     map[int64]model.User{},
		bookings:  map[int64]model.Booking{},
	}
}

func (f *fakeStore) Computers() repository.ComputerRepository { return fakeComputers{f} }
func (f *fakeStore) Students() repository.StudentRepository   { return fakeStudents{f} }
func (f *fakeStore) Users() repository.UserRepository         { return fakeUsers{f} }
func (f *fakeStore) Bookings() repository.BookingRepository   { return fakeBookings{f} }

func (f *fakeStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	saved := f.copyState()
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.restoreState(saved)
		f.mu.Unlock()
		return err
	}
	return nil
}

type fakeState struct {
	computers map[int64]model.Computer
	students  map[int64]model.Student
	users     map[int64]model.User
	bookings  map[int64]model.Booking
}

func (f *fakeStore) copyState() fakeState {
	s := fakeState{
		computers: make(map[int64]model.Computer, len(f.computers)),
		students:  make(map[int64]model.Student, len(f.students)),
		users:     make(map[int64]model.User, len(f.users)),
		bookings:  make(map[int64]model.Booking, len(f.bookings)),
	}
	for k, v := range f.computers {
		s.computers[k] = v
	}
	for k, v := range f.students {
		v.Quota = copyQuota(v.Quota)
		s.students[k] = v
	}
	for k, v := range f.users {
		s.users[k] = v
	}
	for k, v := range f.bookings {
		s.bookings[k] = v
	}
	return s
}

func (f *fakeStore) restoreState(s fakeState) {
	f.computers, f.students, f.users, f.bookings = s.computers, s.students, s.users, s.bookings
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) takeFailure() error {
	err := f.failWith
	f.failWith = nil
	return err
}

func copyQuota(q *model.UsageQuota) *model.UsageQuota {
	if q == nil {
		return nil
	}
	c := *q
	if q.LastDecrementAt != nil {
		t := *q.LastDecrementAt
		c.LastDecrementAt = &t
	}
	return &c
}

// Seeding helpers.

func (f *fakeStore) addComputer(name string, status model.ComputerStatus) model.Computer {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := model.Computer{ID: f.id(), Name: name, Status: status}
	f.computers[c.ID] = c
	return c
}

func (f *fakeStore) addStudent(s model.Student) model.Student {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = f.id()
	s.Quota = copyQuota(s.Quota)
	f.students[s.ID] = s
	return s
}

func (f *fakeStore) addUser(u model.User) model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = f.id()
	f.users[u.ID] = u
	return u
}

func (f *fakeStore) addBooking(b model.Booking) model.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ID = f.id()
	f.bookings[b.ID] = b
	return b
}

func (f *fakeStore) student(id int64) model.Student {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.students[id]
	s.Quota = copyQuota(s.Quota)
	return s
}

func (f *fakeStore) computer(id int64) model.Computer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.computers[id]
}

func (f *fakeStore) user(id int64) (model.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	return u, ok
}

func (f *fakeStore) bookingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bookings)
}

type fakeComputers struct{ f *fakeStore }

func (r fakeComputers) CreateComputer(ctx context.Context, name string) (*model.Computer, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if err := r.f.takeFailure(); err != nil {
		return nil, err
	}
	for _, c := range r.f.computers {
		if c.Name == name {
			return nil, repository.ErrDuplicateComputer
		}
	}
	c := model.Computer{ID: r.f.id(), Name: name, Status: model.ComputerAvailable, LastUpdated: time.Now().UTC()}
	r.f.computers[c.ID] = c
	return &c, nil
}

func (r fakeComputers) GetAllComputers(ctx context.Context) ([]model.Computer, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if err := r.f.takeFailure(); err != nil {
		return nil, err
	}
	out := []model.Computer{}
	for _, c := range r.f.computers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r fakeComputers) GetComputerByID(ctx context.Context, id int64) (*model.Computer, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if err := r.f.takeFailure(); err != nil {
		return nil, err
	}
	c, ok := r.f.computers[id]
	if !ok {
		return nil, repository.ErrComputerNotFound
	}
	return &c, nil
}

func (r fakeComputers) LockComputer(ctx context.Context, id int64) (*model.Computer, error) {
	return r.GetComputerByID(ctx, id)
}

func (r fakeComputers) UpdateComputerStatus(ctx context.Context, id int64, status model.ComputerStatus, currentUser *string, at time.Time) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	c, ok := r.f.computers[id]
	if !ok {
		return repository.ErrComputerNotFound
	}
	c.Status, c.CurrentUser, c.LastUpdated = status, currentUser, at.UTC()
	r.f.computers[id] = c
	return nil
}

func (r fakeComputers) DeleteComputer(ctx context.Context, id int64) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.computers[id]; !ok {
		return repository.ErrComputerNotFound
	}
	delete(r.f.computers, id)
	for bid, b := range r.f.bookings {
		if b.ComputerID == id {
			delete(r.f.bookings, bid)
		}
	}
	return nil
}

type fakeStudents struct{ f *fakeStore }

func (r fakeStudents) CreateStudent(ctx context.Context, s model.Student) (*model.Student, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if err := r.f.takeFailure(); err != nil {
		return nil, err
	}
	for _, existing := range r.f.students {
		if strings.EqualFold(existing.StudentID, s.StudentID) || strings.EqualFold(existing.Email, s.Email) {
			return nil, repository.ErrDuplicateStudent
		}
	}
	s.ID = r.f.id()
	s.Quota = copyQuota(s.Quota)
	r.f.students[s.ID] = s
	return &s, nil
}

func (r fakeStudents) FindStudentByIdentity(ctx context.Context, studentID, email string) (*model.Student, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	studentID, email = strings.TrimSpace(studentID), strings.TrimSpace(email)
	for _, s := range r.f.students {
		if strings.EqualFold(s.StudentID, studentID) || strings.EqualFold(s.Email, email) {
			s.Quota = copyQuota(s.Quota)
			return &s, nil
		}
	}
	return nil, repository.ErrStudentNotFound
}

func (r fakeStudents) GetAllStudents(ctx context.Context) ([]model.Student, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if err := r.f.takeFailure(); err != nil {
		return nil, err
	}
	out := []model.Student{}
	for _, s := range r.f.students {
		s.Quota = copyQuota(s.Quota)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r fakeStudents) GetStudentByID(ctx context.Context, id int64) (*model.Student, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if err := r.f.takeFailure(); err != nil {
		return nil, err
	}
	s, ok := r.f.students[id]
	if !ok {
		return nil, repository.ErrStudentNotFound
	}
	s.Quota = copyQuota(s.Quota)
	return &s, nil
}

func (r fakeStudents) LockStudent(ctx context.Context, id int64) (*model.Student, error) {
	return r.GetStudentByID(ctx, id)
}

func (r fakeStudents) GetStudentByUserID(ctx context.Context, userID int64) (*model.Student, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, s := range r.f.students {
		if s.UserID != nil && *s.UserID == userID {
			s.Quota = copyQuota(s.Quota)
			return &s, nil
		}
	}
	return nil, repository.ErrStudentNotFound
}

func (r fakeStudents) UpdateStudentQuota(ctx context.Context, id int64, quota *model.UsageQuota) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	s, ok := r.f.students[id]
	if !ok {
		return repository.ErrStudentNotFound
	}
	s.Quota = copyQuota(quota)
	r.f.students[id] = s
	return nil
}

func (r fakeStudents) SetStudentActive(ctx context.Context, id int64, active bool) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	s, ok := r.f.students[id]
	if !ok {
		return repository.ErrStudentNotFound
	}
	s.Active = active
	r.f.students[id] = s
	return nil
}

func (r fakeStudents) DeleteStudent(ctx context.Context, id int64) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.students[id]; !ok {
		return repository.ErrStudentNotFound
	}
	r.f.deleteStudentLocked(id)
	return nil
}

func (f *fakeStore) deleteStudentLocked(id int64) {
	delete(f.students, id)
	for bid, b := range f.bookings {
		if b.StudentID == id {
			delete(f.bookings, bid)
		}
	}
}

type fakeUsers struct{ f *fakeStore }

func (r fakeUsers) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if err := r.f.takeFailure(); err != nil {
		return nil, err
	}
	for _, existing := range r.f.users {
		if existing.Username == u.Username || strings.EqualFold(existing.Email, u.Email) {
			return nil, repository.ErrDuplicateUser
		}
	}
	u.ID = r.f.id()
	u.CreatedAt = time.Now().UTC()
	r.f.users[u.ID] = u
	return &u, nil
}

func (r fakeUsers) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	u, ok := r.f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (r fakeUsers) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, u := range r.f.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r fakeUsers) GetAllUsers(ctx context.Context) ([]model.User, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if err := r.f.takeFailure(); err != nil {
		return nil, err
	}
	out := []model.User{}
	for _, u := range r.f.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r fakeUsers) UsernameExists(ctx context.Context, username string) (bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if err := r.f.takeFailure(); err != nil {
		return false, err
	}
	for _, u := range r.f.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeUsers) SetUserActive(ctx context.Context, id int64, active bool) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	u, ok := r.f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.IsActive = active
	r.f.users[id] = u
	return nil
}

func (r fakeUsers) DeleteUser(ctx context.Context, id int64) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(r.f.users, id)
	for sid, s := range r.f.students {
		if s.UserID != nil && *s.UserID == id {
			r.f.deleteStudentLocked(sid)
		}
	}
	return nil
}

type fakeBookings struct{ f *fakeStore }

func (r fakeBookings) CreateBooking(ctx context.Context, b model.Booking) (*model.Booking, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if err := r.f.takeFailure(); err != nil {
		return nil, err
	}
	if b.Status == "" {
		b.Status = model.BookingScheduled
	}
	b.ID = r.f.id()
	b.StartTime, b.EndTime = b.StartTime.UTC(), b.EndTime.UTC()
	b.CreatedAt = time.Now().UTC()
	r.f.bookings[b.ID] = b
	return &b, nil
}

func (r fakeBookings) CountOverlapping(ctx context.Context, computerID int64, start, end time.Time) (int, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if err := r.f.takeFailure(); err != nil {
		return 0, err
	}
	n := 0
	for _, b := range r.f.bookings {
		if b.ComputerID == computerID && b.Status.IsOpen() && b.Overlaps(start, end) {
			n++
		}
	}
	return n, nil
}

func (r fakeBookings) FindStudentBookingInWindow(ctx context.Context, studentID int64, start, end time.Time) (*model.Booking, error) {
	matches, _ := r.list(repository.BookingFilter{StudentID: &studentID, OverlapStart: &start, OverlapEnd: &end, OpenOnly: true})
	if len(matches) == 0 {
		return nil, repository.ErrBookingNotFound
	}
	return &matches[0], nil
}

func (r fakeBookings) ListBookings(ctx context.Context, filter repository.BookingFilter) ([]model.Booking, error) {
	return r.list(filter)
}

func (r fakeBookings) list(filter repository.BookingFilter) ([]model.Booking, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if err := r.f.takeFailure(); err != nil {
		return nil, err
	}
	out := []model.Booking{}
	for _, b := range r.f.bookings {
		switch {
		case filter.StudentID != nil && b.StudentID != *filter.StudentID,
			filter.StartFrom != nil && b.StartTime.Before(*filter.StartFrom),
			filter.StartBefore != nil && !b.StartTime.Before(*filter.StartBefore),
			filter.OverlapEnd != nil && !b.StartTime.Before(*filter.OverlapEnd),
			filter.OverlapStart != nil && !b.EndTime.After(*filter.OverlapStart),
			filter.OpenOnly && !b.Status.IsOpen():
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			if filter.NewestFirst {
				return out[i].StartTime.After(out[j].StartTime)
			}
			return out[i].StartTime.Before(out[j].StartTime)
		}
		if filter.NewestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	if filter.Page != nil {
		if filter.Page.Offset >= len(out) {
			return []model.Booking{}, nil
		}
		out = out[filter.Page.Offset:]
		if filter.Page.Limit < len(out) {
			out = out[:filter.Page.Limit]
		}
	}
	return out, nil
}

func (r fakeBookings) ActivateCurrentBooking(ctx context.Context, computerID int64, at time.Time) (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for id, b := range r.f.bookings {
		if b.ComputerID == computerID && b.Status == model.BookingScheduled &&
			!b.StartTime.After(at) && b.EndTime.After(at) {
			b.Status = model.BookingActive
			r.f.bookings[id] = b
			return 1, nil
		}
	}
	return 0, nil
}

func (r fakeBookings) DeleteBooking(ctx context.Context, id int64) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.bookings[id]; !ok {
		return repository.ErrBookingNotFound
	}
	delete(r.f.bookings, id)
	return nil
}

func repositoryFilterAll() repository.BookingFilter {
	return repository.BookingFilter{}
}
