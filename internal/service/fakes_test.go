package service

import (
	"bytes"
	"context"
	"io"
	"sync"

	"portfolio/api/internal/models"
	"portfolio/api/internal/repository"
)

type fakeAdmins struct {
	mu        sync.Mutex
	admins    map[string]models.Admin
	err       error
	updateErr error
	calls     int
}

func newFakeAdmins(admins ...models.Admin) *fakeAdmins {
	f := &fakeAdmins{admins: make(map[string]models.Admin)}
	for _, a := range admins {
		f.admins[a.ID] = a
	}
	return f
}

func (f *fakeAdmins) FindByEmail(_ context.Context, email string) (models.Admin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return models.Admin{}, f.err
	}
	for _, a := range f.admins {
		if a.Email == email {
			return a, nil
		}
	}
	return models.Admin{}, repository.ErrAdminNotFound
}

func (f *fakeAdmins) GetByID(_ context.Context, id string) (models.Admin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return models.Admin{}, f.err
	}
	a, ok := f.admins[id]
	if !ok {
		return models.Admin{}, repository.ErrAdminNotFound
	}
	return a, nil
}

func (f *fakeAdmins) MatchesIdentity(_ context.Context, id, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	a, ok := f.admins[id]
	return ok && a.Email == email, nil
}

func (f *fakeAdmins) UpdatePassword(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.updateErr != nil {
		return f.updateErr
	}
	a, ok := f.admins[id]
	if !ok {
		return repository.ErrAdminNotFound
	}
	a.PasswordHash = hash
	f.admins[id] = a
	return nil
}

func (f *fakeAdmins) UpdateProfile(_ context.Context, id string, u repository.ProfileUpdate) (models.Admin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.updateErr != nil {
		return models.Admin{}, f.updateErr
	}
	a, ok := f.admins[id]
	if !ok {
		return models.Admin{}, repository.ErrAdminNotFound
	}
	a.FirstName, a.LastName, a.Email = u.FirstName, u.LastName, u.Email
	f.admins[id] = a
	return a, nil
}

type fakeMedia struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *fakeMedia) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	m.objects[key] = buf.Bytes()
	m.types[key] = contentType
	return "https://cdn.example.com/" + key, nil
}

func (m *fakeMedia) Remove(_ context.Context, key string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.objects, key)
	return nil
}
