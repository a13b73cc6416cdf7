package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fundtrace/internal/domain"
)

// Store is an in-memory ledger and risk store, safe for concurrent use. Units
// of work run one at a time against a private copy of the maps and are swapped
// in on success, so a failed callback leaves no trace.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data *state
	risk riskState
}

type state struct {
	seq            map[string]int64
	donations      map[int64]*domain.Donation
	transactions   map[int64]*domain.PaymentTransaction
	utilizations   map[int64]*domain.FundUtilization
	transparencies map[int64]*domain.FundTransparency
	projects       map[int64]*domain.Project
	schools        map[int64]*domain.School
	students       map[int64]*domain.Student
	participations map[[2]int64]*domain.ProjectSchool
}

var (
	_ domain.LedgerStore = (*Store)(nil)
	_ domain.LedgerTx    = (*tx)(nil)
	_ domain.RiskStore   = (*Store)(nil)
	_ domain.RiskTx      = riskTx{}
)

// New creates an empty store.
func New() *Store {
	return &Store{
		data: &state{
			seq:            map[string]int64{},
			donations:      map[int64]*domain.Donation{},
			transactions:   map[int64]*domain.PaymentTransaction{},
			utilizations:   map[int64]*domain.FundUtilization{},
			transparencies: map[int64]*domain.FundTransparency{},
			projects:       map[int64]*domain.Project{},
			schools:        map[int64]*domain.School{},
			students:       map[int64]*domain.Student{},
			participations: map[[2]int64]*domain.ProjectSchool{},
		},
		risk: riskState{
			predictions: map[int64]*domain.DropoutPrediction{},
			attendance:  map[int64]map[string]bool{},
		},
	}
}

func (s *state) clone() *state {
	return &state{
		seq:            cloneMap(s.seq),
		donations:      cloneMap(s.donations),
		transactions:   cloneMap(s.transactions),
		utilizations:   cloneMap(s.utilizations),
		transparencies: cloneMap(s.transparencies),
		projects:       cloneMap(s.projects),
		schools:        cloneMap(s.schools),
		students:       cloneMap(s.students),
		participations: cloneMap(s.participations),
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *state) next(kind string) int64 {
	s.seq[kind]++
	return s.seq[kind]
}

// PutProject seeds or replaces a project. Reference data is owned by the
// persistence collaborator; the ledger only reads it.
func (s *Store) PutProject(p domain.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.projects[p.ID] = &p
}

// PutSchool seeds or replaces a school.
func (s *Store) PutSchool(sc domain.School) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.schools[sc.ID] = &sc
}

// PutStudent seeds or replaces a student.
func (s *Store) PutStudent(st domain.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.students[st.ID] = &st
}

// WithinTx runs fn as a serialized unit of work.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.data.clone()
	s.mu.RUnlock()

	if err := fn(&tx{reader{work}}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

func (s *Store) GetDonation(ctx context.Context, id int64) (*domain.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.data}.GetDonation(ctx, id)
}

func (s *Store) ListDonations(ctx context.Context, f domain.DonationFilter) ([]domain.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.data}.ListDonations(ctx, f)
}

func (s *Store) ListTransactions(ctx context.Context, donationID int64) ([]domain.PaymentTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.data}.ListTransactions(ctx, donationID)
}

func (s *Store) FindTransactionByReference(ctx context.Context, reference string) (*domain.PaymentTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.data}.FindTransactionByReference(ctx, reference)
}

func (s *Store) GetUtilization(ctx context.Context, id int64) (*domain.FundUtilization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.data}.GetUtilization(ctx, id)
}

func (s *Store) ListUtilizations(ctx context.Context, f domain.UtilizationFilter) ([]domain.FundUtilization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.data}.ListUtilizations(ctx, f)
}

func (s *Store) GetTransparency(ctx context.Context, id int64) (*domain.FundTransparency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.data}.GetTransparency(ctx, id)
}

func (s *Store) GetTransparencyByUtilization(ctx context.Context, utilizationID int64) (*domain.FundTransparency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.data}.GetTransparencyByUtilization(ctx, utilizationID)
}

func (s *Store) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.data}.GetProject(ctx, id)
}

func (s *Store) ListProjects(ctx context.Context, f domain.ProjectFilter) ([]domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.data}.ListProjects(ctx, f)
}

func (s *Store) GetSchool(ctx context.Context, id int64) (*domain.School, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.data}.GetSchool(ctx, id)
}

func (s *Store) GetStudent(ctx context.Context, id int64) (*domain.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.data}.GetStudent(ctx, id)
}

func (s *Store) ListStudents(ctx context.Context, schoolID int64) ([]domain.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.data}.ListStudents(ctx, schoolID)
}

func (s *Store) ListParticipations(ctx context.Context, f domain.ParticipationFilter) ([]domain.ProjectSchool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.data}.ListParticipations(ctx, f)
}

// reader implements the read side over one version of the state.
type reader struct {
	s *state
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, domain.ErrNotFound)
}

func (r reader) GetDonation(_ context.Context, id int64) (*domain.Donation, error) {
	d, ok := r.s.donations[id]
	if !ok {
		return nil, notFound("donation", id)
	}
	cp := *d
	return &cp, nil
}

func (r reader) ListDonations(_ context.Context, f domain.DonationFilter) ([]domain.Donation, error) {
	var out []domain.Donation
	for _, d := range r.s.donations {
		if f.DonorID != 0 && d.DonorID != f.DonorID {
			continue
		}
		if f.ProjectID != 0 && (d.Target.ProjectID == nil || *d.Target.ProjectID != f.ProjectID) {
			continue
		}
		if f.StudentID != 0 && (d.Target.StudentID == nil || *d.Target.StudentID != f.StudentID) {
			continue
		}
		if f.Status != "" && d.PaymentStatus != f.Status {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r reader) ListTransactions(_ context.Context, donationID int64) ([]domain.PaymentTransaction, error) {
	var out []domain.PaymentTransaction
	for _, t := range r.s.transactions {
		if t.DonationID == donationID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r reader) FindTransactionByReference(_ context.Context, reference string) (*domain.PaymentTransaction, error) {
	for _, t := range r.s.transactions {
		if t.Reference == reference {
			cp := *t
			return &cp, nil
		}
	}
	return nil, notFound("transaction", reference)
}

func (r reader) GetUtilization(_ context.Context, id int64) (*domain.FundUtilization, error) {
	u, ok := r.s.utilizations[id]
	if !ok {
		return nil, notFound("utilization", id)
	}
	cp := copyUtilization(u)
	return &cp, nil
}

func (r reader) ListUtilizations(_ context.Context, f domain.UtilizationFilter) ([]domain.FundUtilization, error) {
	var out []domain.FundUtilization
	for _, u := range r.s.utilizations {
		if f.DonationID != 0 && u.DonationID != f.DonationID {
			continue
		}
		if f.ProjectID != 0 && u.ProjectID != f.ProjectID {
			continue
		}
		if f.SchoolID != 0 && (u.SchoolID == nil || *u.SchoolID != f.SchoolID) {
			continue
		}
		if f.Status != "" && u.Status != f.Status {
			continue
		}
		out = append(out, copyUtilization(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r reader) GetTransparency(_ context.Context, id int64) (*domain.FundTransparency, error) {
	t, ok := r.s.transparencies[id]
	if !ok {
		return nil, notFound("transparency", id)
	}
	cp := copyTransparency(t)
	return &cp, nil
}

func (r reader) GetTransparencyByUtilization(_ context.Context, utilizationID int64) (*domain.FundTransparency, error) {
	for _, t := range r.s.transparencies {
		if t.UtilizationID == utilizationID {
			cp := copyTransparency(t)
			return &cp, nil
		}
	}
	return nil, notFound("transparency for utilization", utilizationID)
}

func (r reader) GetProject(_ context.Context, id int64) (*domain.Project, error) {
	p, ok := r.s.projects[id]
	if !ok {
		return nil, notFound("project", id)
	}
	cp := *p
	return &cp, nil
}

func (r reader) ListProjects(_ context.Context, f domain.ProjectFilter) ([]domain.Project, error) {
	var out []domain.Project
	for _, p := range r.s.projects {
		if f.NgoID != 0 && p.NgoID != f.NgoID {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r reader) GetSchool(_ context.Context, id int64) (*domain.School, error) {
	sc, ok := r.s.schools[id]
	if !ok {
		return nil, notFound("school", id)
	}
	cp := *sc
	return &cp, nil
}

func (r reader) GetStudent(_ context.Context, id int64) (*domain.Student, error) {
	st, ok := r.s.students[id]
	if !ok {
		return nil, notFound("student", id)
	}
	cp := *st
	return &cp, nil
}

func (r reader) ListStudents(_ context.Context, schoolID int64) ([]domain.Student, error) {
	var out []domain.Student
	for _, st := range r.s.students {
		if schoolID != 0 && st.SchoolID != schoolID {
			continue
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r reader) ListParticipations(_ context.Context, f domain.ParticipationFilter) ([]domain.ProjectSchool, error) {
	var out []domain.ProjectSchool
	for _, ps := range r.s.participations {
		if f.ProjectID != 0 && ps.ProjectID != f.ProjectID {
			continue
		}
		if f.SchoolID != 0 && ps.SchoolID != f.SchoolID {
			continue
		}
		out = append(out, *ps)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProjectID != out[j].ProjectID {
			return out[i].ProjectID < out[j].ProjectID
		}
		return out[i].SchoolID < out[j].SchoolID
	})
	return out, nil
}

func copyUtilization(u *domain.FundUtilization) domain.FundUtilization {
	cp := *u
	cp.Evidence.ReceiptURLs = append([]string(nil), u.Evidence.ReceiptURLs...)
	return cp
}

func copyTransparency(t *domain.FundTransparency) domain.FundTransparency {
	cp := *t
	cp.BeforePhotos = append([]string(nil), t.BeforePhotos...)
	cp.AfterPhotos = append([]string(nil), t.AfterPhotos...)
	if t.Warning != nil {
		w := *t.Warning
		cp.Warning = &w
	}
	return cp
}
