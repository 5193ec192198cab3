package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	custodymodels "custodian/internal/custody/models"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/platform/notify"
	"custodian/pkg/platform/notify/mocks"
)

type formCall struct {
	manifestID     id.ManifestID
	required, days int
	actor          id.UserID
}

type stubForms struct {
	calls []formCall
	err   error
}

func (f *stubForms) GenerateForm(_ context.Context, manifestID id.ManifestID, required, days int, actor id.UserID) (*custodymodels.Form, error) {
	f.calls = append(f.calls, formCall{manifestID, required, days, actor})
	if f.err != nil {
		return nil, f.err
	}
	return &custodymodels.Form{ID: id.FormID(uuid.New()), ManifestID: manifestID}, nil
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestDispatchRoutesNotifications(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	var logs bytes.Buffer
	d := New(notifier, WithLogger(quietLogger(&logs)))

	var got []notify.Message
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg notify.Message) error {
			got = append(got, msg)
			return nil
		}).Times(2)

	d.Dispatch(context.Background(), id.UserID(uuid.New()), []effect.Effect{
		effect.Notify(effect.ChannelWarehouse, "asset %s returned", "SN-1"),
		effect.Notify(effect.ChannelLogistics, "manifest shipped"),
	})

	require.Len(t, got, 2)
	assert.Equal(t, effect.ChannelWarehouse, got[0].Channel)
	assert.Equal(t, "asset SN-1 returned", got[0].Body)
	assert.NotEqual(t, uuid.Nil, got[0].ID)
	assert.Equal(t, effect.ChannelLogistics, got[1].Channel)
}

func TestDispatchLogsNotifierFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	var logs bytes.Buffer
	d := New(notifier, WithLogger(quietLogger(&logs)))

	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	d.Dispatch(context.Background(), id.UserID(uuid.New()), []effect.Effect{
		effect.Notify(effect.ChannelElectionStatus, "form completed"),
	})
	assert.Contains(t, logs.String(), "notification failed")
	assert.Contains(t, logs.String(), "broker down")
}

func TestDispatchRequestsCustodyForm(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	var logs bytes.Buffer
	forms := &stubForms{}
	d := New(notifier, WithLogger(quietLogger(&logs))).
		WithForms(forms, FormDefaults{RequiredSignatures: 2, ExpirationDays: 7})

	actor := id.UserID(uuid.New())
	manifestID := id.ManifestID(uuid.New())
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)

	d.Dispatch(context.Background(), actor, []effect.Effect{
		effect.RequestCustodyForm(manifestID),
		effect.Notify(effect.ChannelLogistics, "manifest completed"),
	})

	require.Len(t, forms.calls, 1)
	assert.Equal(t, formCall{manifestID, 2, 7, actor}, forms.calls[0])
	assert.Contains(t, logs.String(), "custody form generated")
}

func TestDispatchToleratesExistingForm(t *testing.T) {
	var logs bytes.Buffer
	forms := &stubForms{err: dErrors.NewReason(dErrors.ReasonInvalidFormState, "manifest already has a custody form")}
	d := New(nil, WithLogger(quietLogger(&logs))).WithForms(forms, FormDefaults{RequiredSignatures: 1, ExpirationDays: 1})

	d.Dispatch(context.Background(), id.UserID(uuid.New()), []effect.Effect{effect.RequestCustodyForm(id.ManifestID(uuid.New()))})
	assert.Contains(t, logs.String(), "custody form already exists")
	assert.NotContains(t, logs.String(), "generation failed")
}

func TestDispatchWithoutFormsBinding(t *testing.T) {
	var logs bytes.Buffer
	d := New(nil, WithLogger(quietLogger(&logs)))
	d.Dispatch(context.Background(), id.UserID(uuid.New()), []effect.Effect{effect.RequestCustodyForm(id.ManifestID(uuid.New()))})
	assert.Contains(t, logs.String(), "no generator is bound")
}
