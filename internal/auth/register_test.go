package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/internal/providers"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
)

type stubTxRunner struct{}

func (s stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubRegistrar struct {
	inputs []providers.RegisterInput
}

func (s *stubRegistrar) Register(ctx context.Context, tx *gorm.DB, input providers.RegisterInput) (*models.ServiceProvider, error) {
	s.inputs = append(s.inputs, input)
	return &models.ServiceProvider{ID: uuid.New(), UserID: input.UserID, EmployeeID: "SP000001"}, nil
}

type stubOTPSender struct {
	requests []SendOTPRequest
}

func (s *stubOTPSender) SendOTP(ctx context.Context, req SendOTPRequest) (*SendOTPResponse, error) {
	s.requests = append(s.requests, req)
	return &SendOTPResponse{MobileNumber: req.Mobile, ExpiresInSeconds: 300}, nil
}

type registerTestSetup struct {
	service   RegisterService
	userRepo  *stubUserRepo
	registrar *stubRegistrar
	otp       *stubOTPSender
}

func newRegisterTestSetup(t *testing.T, existing ...*models.User) *registerTestSetup {
	t.Helper()
	setup := &registerTestSetup{
		userRepo:  newStubUserRepo(existing...),
		registrar: &stubRegistrar{},
		otp:       &stubOTPSender{},
	}
	svc, err := NewRegisterService(RegisterServiceParams{
		TxRunner: stubTxRunner{},
		UserRepoFactory: func(tx *gorm.DB) registerUserRepository {
			return setup.userRepo
		},
		Providers: setup.registrar,
		OTP:       setup.otp,
	})
	if err != nil {
		t.Fatalf("new register service: %v", err)
	}
	setup.service = svc
	return setup
}

func TestRegisterProviderCreatesAccountAndSendsOTP(t *testing.T) {
	setup := newRegisterTestSetup(t)

	resp, err := setup.service.RegisterProvider(context.Background(), ProviderRegisterRequest{
		Mobile:          "+91 91234 56780",
		Name:            " Ravi Kumar ",
		Specialization:  "bike_specialist",
		ExperienceYears: 6,
	})
	if err != nil {
		t.Fatalf("register provider: %v", err)
	}
	if resp.MobileNumber != "9123456780" {
		t.Fatalf("unexpected otp response %+v", resp)
	}

	user := setup.userRepo.byMobile["9123456780"]
	if user == nil || user.UserType != enums.UserTypeProvider || user.Name != "Ravi Kumar" {
		t.Fatalf("provider user not created correctly: %+v", user)
	}
	if len(setup.registrar.inputs) != 1 {
		t.Fatalf("expected one provider profile, got %d", len(setup.registrar.inputs))
	}
	input := setup.registrar.inputs[0]
	if input.UserID != user.ID || input.Specialization != "bike_specialist" || input.ExperienceYears != 6 {
		t.Fatalf("unexpected register input %+v", input)
	}
	if len(setup.otp.requests) != 1 || setup.otp.requests[0].UserType != enums.UserTypeProvider {
		t.Fatalf("expected provider otp request, got %+v", setup.otp.requests)
	}
}

func TestRegisterProviderRejectsKnownMobile(t *testing.T) {
	existing := &models.User{ID: uuid.New(), MobileNumber: "9123456780", UserType: enums.UserTypeCustomer}
	setup := newRegisterTestSetup(t, existing)

	_, err := setup.service.RegisterProvider(context.Background(), ProviderRegisterRequest{Mobile: "9123456780", Name: "Ravi"})
	expectCode(t, err, pkgerrors.CodeConflict)
	if len(setup.registrar.inputs) != 0 || len(setup.otp.requests) != 0 {
		t.Fatal("no provider or otp expected for a known mobile")
	}
}

func TestRegisterProviderValidatesInput(t *testing.T) {
	setup := newRegisterTestSetup(t)

	_, err := setup.service.RegisterProvider(context.Background(), ProviderRegisterRequest{Mobile: "12", Name: "Ravi"})
	expectCode(t, err, pkgerrors.CodeValidation)

	_, err = setup.service.RegisterProvider(context.Background(), ProviderRegisterRequest{Mobile: "9123456780", Name: "  "})
	expectCode(t, err, pkgerrors.CodeValidation)
}
