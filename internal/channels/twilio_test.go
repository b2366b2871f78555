package channels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwilioSMS_Send(t *testing.T) {
	var gotPath, gotTo, gotFrom, gotBody string
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		gotTo = r.PostForm.Get("To")
		gotFrom = r.PostForm.Get("From")
		gotBody = r.PostForm.Get("Body")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	sms := NewTwilioSMS(TwilioConfig{
		AccountSID: "AC42",
		AuthToken:  "secret",
		From:       "+15550001111",
		BaseURL:    srv.URL,
	})

	res, err := sms.SendSMS(context.Background(), SMSMessage{To: "+15551234567", Message: "hello"})

	require.NoError(t, err)
	assert.Equal(t, "SM123", res.ID)
	assert.Equal(t, "queued", res.Status)
	assert.Equal(t, "/2010-04-01/Accounts/AC42/Messages.json", gotPath)
	assert.Equal(t, "AC42", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.Equal(t, "+15551234567", gotTo)
	assert.Equal(t, "+15550001111", gotFrom)
	assert.Equal(t, "hello", gotBody)
}

func TestTwilioSMS_MessageFromOverridesDefault(t *testing.T) {
	var gotFrom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotFrom = r.PostForm.Get("From")
		w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	sms := NewTwilioSMS(TwilioConfig{AccountSID: "AC42", From: "+15550001111", BaseURL: srv.URL})

	_, err := sms.SendSMS(context.Background(), SMSMessage{To: "+15551234567", From: "+15559990000", Message: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "+15559990000", gotFrom)
}

func TestTwilioSMS_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sms := NewTwilioSMS(TwilioConfig{AccountSID: "AC42", BaseURL: srv.URL})

	_, err := sms.SendSMS(context.Background(), SMSMessage{To: "+15551234567", Message: "hi"})

	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestTwilioSMS_RejectionIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sms := NewTwilioSMS(TwilioConfig{AccountSID: "AC42", BaseURL: srv.URL})

	_, err := sms.SendSMS(context.Background(), SMSMessage{To: "bad", Message: "hi"})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProviderUnavailable)
}

func TestTwilioSMS_UnreachableHostIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	sms := NewTwilioSMS(TwilioConfig{AccountSID: "AC42", BaseURL: srv.URL})

	_, err := sms.SendSMS(context.Background(), SMSMessage{To: "+15551234567", Message: "hi"})

	assert.ErrorIs(t, err, ErrProviderUnavailable)
}
