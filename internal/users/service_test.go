package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/relaytrack/relaytrack/internal/shared"
)

type fakeRepo struct {
	Repository
	users  map[int64]User
	nextID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[int64]User)}
}

func (f *fakeRepo) Create(_ context.Context, u User) (User, error) {
	for _, existing := range f.users {
		if existing.Code == u.Code {
			return User{}, shared.ErrConflict
		}
	}
	f.nextID++
	u.ID = f.nextID
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeRepo) GetByCode(_ context.Context, code string) (User, error) {
	for _, u := range f.users {
		if u.Code == code {
			return u, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func (f *fakeRepo) ClearDevice(_ context.Context, deviceID string) error {
	for id, u := range f.users {
		if u.DeviceID != nil && *u.DeviceID == deviceID {
			u.DeviceID = nil
			f.users[id] = u
		}
	}
	return nil
}

func (f *fakeRepo) AssignDevice(_ context.Context, userID int64, deviceID string) error {
	u := f.users[userID]
	u.DeviceID = &deviceID
	f.users[userID] = u
	return nil
}

func TestCreateHashesPassword(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	u, err := svc.Create(context.Background(), User{Code: "W001", Name: "Asha"}, "opensesame")
	require.NoError(t, err)
	require.NotEqual(t, "opensesame", u.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("opensesame")))
}

func TestAuthenticate(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, User{Code: "W001"}, "opensesame")
	require.NoError(t, err)

	u, err := svc.Authenticate(ctx, "W001", "opensesame")
	require.NoError(t, err)
	require.Equal(t, "W001", u.Code)

	_, err = svc.Authenticate(ctx, "W001", "wrong")
	require.ErrorIs(t, err, ErrBadCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "opensesame")
	require.ErrorIs(t, err, ErrBadCredentials)
}

func TestReassignDeviceStealsFromPreviousOwner(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	first, err := svc.Create(ctx, User{Code: "W001"}, "password1")
	require.NoError(t, err)
	second, err := svc.Create(ctx, User{Code: "W002"}, "password2")
	require.NoError(t, err)

	require.NoError(t, svc.ReassignDevice(ctx, "W001", "device-abc"))
	require.NotNil(t, repo.users[first.ID].DeviceID)

	require.NoError(t, svc.ReassignDevice(ctx, "W002", "device-abc"))
	require.Nil(t, repo.users[first.ID].DeviceID)
	require.NotNil(t, repo.users[second.ID].DeviceID)
	require.Equal(t, "device-abc", *repo.users[second.ID].DeviceID)
}

func TestReassignDeviceUnknownUserCode(t *testing.T) {
	svc := NewService(newFakeRepo())
	err := svc.ReassignDevice(context.Background(), "ghost", "device-abc")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
