package patient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

func (m *mockRepo) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	p, ok := m.patients[id]
	return ok && p.Active, nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		result = append(result, p)
	}
	return result, len(result), nil
}

func TestCreatePatient(t *testing.T) {
	svc := NewService(newMockRepo())

	p := &Patient{MRN: "MRN-001", FirstName: "Alice", LastName: "Nguyen"}
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if !p.Active {
		t.Error("expected new patient to be active")
	}
}

func TestCreatePatientValidation(t *testing.T) {
	svc := NewService(newMockRepo())

	tests := []struct {
		name string
		p    *Patient
	}{
		{"missing name", &Patient{MRN: "MRN-002"}},
		{"missing mrn", &Patient{FirstName: "Bob", LastName: "Ortiz"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.Create(context.Background(), tt.p); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestGetPatient(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	p := &Patient{MRN: "MRN-003", FirstName: "Carol", LastName: "Diaz"}
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.MRN != "MRN-003" {
		t.Errorf("MRN = %q, want MRN-003", got.MRN)
	}

	if _, err := svc.Get(context.Background(), uuid.New()); err == nil {
		t.Error("expected error for unknown id")
	}
}
