package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lucasfragadev/gym-dev/internal/apperr"
	"github.com/lucasfragadev/gym-dev/internal/models"
	"github.com/lucasfragadev/gym-dev/internal/repository"
	"github.com/lucasfragadev/gym-dev/internal/security"
	"github.com/lucasfragadev/gym-dev/internal/testutil"
)

type authFixture struct {
	svc       *AuthService
	users     *testutil.Users
	codec     *security.TokenCodec
	publisher *testutil.Publisher
}

func newAuthFixture(t *testing.T, users *testutil.Users) authFixture {
	t.Helper()
	if users == nil {
		users = testutil.NewUsers()
	}
	codec := testutil.Codec(t)
	publisher := &testutil.Publisher{}
	svc := NewAuthService(users, testutil.Hasher(), codec, publisher, nil, zerolog.Nop())
	return authFixture{svc: svc, users: users, codec: codec, publisher: publisher}
}

func requireKind(t *testing.T, err error, kind apperr.Kind) *apperr.Error {
	t.Helper()
	appErr, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected *apperr.Error of kind %s, got %v", kind, err)
	}
	if appErr.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%s)", kind, appErr.Kind, appErr.Message)
	}
	return appErr
}

func strPtr(s string) *string { return &s }

func TestRegisterIssuesTokensForNewMember(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, RegisterInput{
		Name:     "Ana",
		Email:    "  Ana@Gym.COM ",
		Password: "password-123",
		GymID:    "gym-1",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if result.Profile.Email != "ana@gym.com" || result.Profile.Role != models.RoleMember || !result.Profile.Active {
		t.Fatalf("unexpected profile: %+v", result.Profile)
	}

	access, err := f.codec.VerifyAccessToken(result.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if access.UserID() != result.Profile.ID || access.GymID != "gym-1" || access.Role != models.RoleMember {
		t.Fatalf("unexpected access claims: %+v", access)
	}
	refresh, err := f.codec.VerifyRefreshToken(result.RefreshToken)
	if err != nil || refresh.UserID() != result.Profile.ID {
		t.Fatalf("unexpected refresh token: %v %+v", err, refresh)
	}

	stored, err := f.users.GetByID(ctx, result.Profile.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if string(stored.PasswordHash) == "password-123" || !testutil.Hasher().Verify("password-123", stored.PasswordHash) {
		t.Fatalf("password was not stored as a digest")
	}

	if types := f.publisher.Types(); len(types) != 1 || types[0] != string(models.EventUserRegistered) {
		t.Fatalf("unexpected events: %v", types)
	}
}

func TestRegisterDuplicateEmailIsScopedToGym(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()
	input := RegisterInput{Name: "Bo", Email: "bo@gym.com", Password: "password-123", GymID: "gym-1"}

	if _, err := f.svc.Register(ctx, input); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := f.svc.Register(ctx, input)
	appErr := requireKind(t, err, apperr.KindConflict)
	if appErr.Status() != 409 {
		t.Fatalf("unexpected status %d", appErr.Status())
	}

	input.GymID = "gym-2"
	if _, err := f.svc.Register(ctx, input); err != nil {
		t.Fatalf("same email in another gym should succeed: %v", err)
	}
}

func TestRegisterDuplicateNationalIDIsGlobal(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, RegisterInput{
		Name: "Cy", Email: "cy@gym.com", Password: "password-123", GymID: "gym-1", NationalID: strPtr("123.456.789-00"),
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := f.svc.Register(ctx, RegisterInput{
		Name: "Di", Email: "di@gym.com", Password: "password-123", GymID: "gym-2", NationalID: strPtr(" 123.456.789-00 "),
	})
	appErr := requireKind(t, err, apperr.KindConflict)
	if appErr.Message != msgNationalIDTaken {
		t.Fatalf("unexpected message %q", appErr.Message)
	}
}

// racingUsers never sees an existing email, as when two registrations run
// concurrently; the store constraint must still surface as a conflict.
type racingUsers struct {
	*testutil.Users
}

func (r racingUsers) FindByEmail(context.Context, string, string) (models.User, error) {
	return models.User{}, repository.ErrUserNotFound
}

func TestRegisterStoreRaceBecomesConflict(t *testing.T) {
	users := testutil.NewUsers()
	svc := NewAuthService(racingUsers{users}, testutil.Hasher(), testutil.Codec(t), nil, nil, zerolog.Nop())
	ctx := context.Background()
	input := RegisterInput{Name: "Ed", Email: "ed@gym.com", Password: "password-123", GymID: "gym-1"}

	if _, err := svc.Register(ctx, input); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := svc.Register(ctx, input)
	appErr := requireKind(t, err, apperr.KindConflict)
	if appErr.Message != msgEmailTaken {
		t.Fatalf("unexpected message %q", appErr.Message)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture(t, testutil.NewUsers("gym-1"))
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Name: "Fa", Email: "", Password: "password-123", GymID: "gym-1"})
	requireKind(t, err, apperr.KindInvalid)

	_, err = f.svc.Register(ctx, RegisterInput{Name: "Fa", Email: "fa@gym.com", Password: "password-123", GymID: "gym-1", Role: "OWNER"})
	requireKind(t, err, apperr.KindInvalid)

	_, err = f.svc.Register(ctx, RegisterInput{Name: "Fa", Email: "fa@gym.com", Password: "password-123", GymID: "gym-9"})
	requireKind(t, err, apperr.KindNotFound)

	result, err := f.svc.Register(ctx, RegisterInput{Name: "Fa", Email: "fa@gym.com", Password: "password-123", GymID: "gym-1", Role: models.RoleInstructor})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if result.Profile.Role != models.RoleInstructor {
		t.Fatalf("explicit role not kept: %s", result.Profile.Role)
	}
}

func TestLoginUsesOneMessageForUnknownEmailAndWrongPassword(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()
	testutil.SeedUser(t, f.users, "u1", "gym-1", "gil@gym.com", models.RoleMember, "password-123")

	_, unknown := f.svc.Login(ctx, LoginInput{Email: "nobody@gym.com", Password: "password-123", GymID: "gym-1"})
	_, wrong := f.svc.Login(ctx, LoginInput{Email: "gil@gym.com", Password: "password-999", GymID: "gym-1"})
	_, otherGym := f.svc.Login(ctx, LoginInput{Email: "gil@gym.com", Password: "password-123", GymID: "gym-2"})

	e1 := requireKind(t, unknown, apperr.KindUnauthorized)
	e2 := requireKind(t, wrong, apperr.KindUnauthorized)
	e3 := requireKind(t, otherGym, apperr.KindUnauthorized)
	if e1.Message != e2.Message || e2.Message != e3.Message || e1.Message != msgInvalidCredentials {
		t.Fatalf("messages differ: %q %q %q", e1.Message, e2.Message, e3.Message)
	}

	result, err := f.svc.Login(ctx, LoginInput{Email: " GIL@gym.com", Password: "password-123", GymID: "gym-1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.Profile.ID != "u1" || result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	types := f.publisher.Types()
	if len(types) != 2 || types[0] != string(models.EventUserLoginFailed) || types[1] != string(models.EventUserLogin) {
		t.Fatalf("unexpected events: %v", types)
	}
}

type countingHasher struct {
	PasswordHasher
	verifies int
}

func (h *countingHasher) Verify(password string, digest []byte) bool {
	h.verifies++
	return h.PasswordHasher.Verify(password, digest)
}

func TestLoginUnknownEmailStillVerifiesAPassword(t *testing.T) {
	users := testutil.NewUsers()
	hasher := &countingHasher{PasswordHasher: testutil.Hasher()}
	svc := NewAuthService(users, hasher, testutil.Codec(t), nil, nil, zerolog.Nop())
	testutil.SeedUser(t, users, "user-1", "gym-1", "ana@gym.com", models.RoleMember, "password-123")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Login(ctx, LoginInput{Email: "nobody@gym.com", Password: "password-123", GymID: "gym-1"})
		requireKind(t, err, apperr.KindUnauthorized)
	}
	if hasher.verifies != 2 {
		t.Fatalf("expected one verification per unknown-email login, got %d", hasher.verifies)
	}

	_, err := svc.Login(ctx, LoginInput{Email: "ana@gym.com", Password: "wrong-password", GymID: "gym-1"})
	requireKind(t, err, apperr.KindUnauthorized)
	if hasher.verifies != 3 {
		t.Fatalf("expected wrong password to verify once, got %d", hasher.verifies)
	}
}

func TestLoginInactiveIsForbidden(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.users, "u1", "gym-1", "hal@gym.com", models.RoleMember, "password-123")
	user.Active = false
	f.users.Put(user)

	_, err := f.svc.Login(ctx, LoginInput{Email: "hal@gym.com", Password: "password-123", GymID: "gym-1"})
	requireKind(t, err, apperr.KindForbidden)
}

func TestRefreshReflectsCurrentRecord(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.users, "u1", "gym-1", "ivy@gym.com", models.RoleMember, "password-123")

	login, err := f.svc.Login(ctx, LoginInput{Email: "ivy@gym.com", Password: "password-123", GymID: "gym-1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	user.Role = models.RoleInstructor
	f.users.Put(user)

	token, err := f.svc.RefreshAccessToken(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshAccessToken: %v", err)
	}
	claims, err := f.codec.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.Role != models.RoleInstructor || claims.GymID != "gym-1" {
		t.Fatalf("refresh did not pick up current role: %+v", claims)
	}

	user.Active = false
	f.users.Put(user)
	_, err = f.svc.RefreshAccessToken(ctx, login.RefreshToken)
	requireKind(t, err, apperr.KindForbidden)

	if err := f.users.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err = f.svc.RefreshAccessToken(ctx, login.RefreshToken)
	requireKind(t, err, apperr.KindNotFound)
}

func TestRefreshRejectsBadTokens(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()
	testutil.SeedUser(t, f.users, "u1", "gym-1", "jo@gym.com", models.RoleMember, "password-123")

	access, err := f.codec.IssueAccessToken("u1", "gym-1", models.RoleMember)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	for _, token := range []string{"", "garbage", access} {
		_, err := f.svc.RefreshAccessToken(ctx, token)
		requireKind(t, err, apperr.KindUnauthorized)
	}
}

func TestGetProfile(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.users, "u1", "gym-1", "kai@gym.com", models.RoleAdmin, "password-123")

	profile, err := f.svc.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile.ID != "u1" || profile.Role != models.RoleAdmin {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	_, err = f.svc.GetProfile(ctx, "missing")
	requireKind(t, err, apperr.KindNotFound)

	user.Active = false
	f.users.Put(user)
	_, err = f.svc.GetProfile(ctx, "u1")
	requireKind(t, err, apperr.KindForbidden)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.publisher.Err = errors.New("redis down")

	if _, err := f.svc.Register(context.Background(), RegisterInput{
		Name: "Lu", Email: "lu@gym.com", Password: "password-123", GymID: "gym-1",
	}); err != nil {
		t.Fatalf("Register should ignore publish failures: %v", err)
	}
}

func TestStoreFailureIsUnexpected(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.users.Err = errors.New("connection refused")

	_, err := f.svc.Login(context.Background(), LoginInput{Email: "mo@gym.com", Password: "password-123", GymID: "gym-1"})
	appErr := requireKind(t, err, apperr.KindUnexpected)
	if appErr.Message != "internal server error" || appErr.Status() != 500 {
		t.Fatalf("internal detail leaked: %+v", appErr)
	}
}
