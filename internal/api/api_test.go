package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/erazemk/rxledger/internal/auth"
	"github.com/erazemk/rxledger/internal/db"
	"github.com/erazemk/rxledger/internal/journal"
	"github.com/erazemk/rxledger/internal/ledger"
	"github.com/erazemk/rxledger/internal/model"
	"github.com/erazemk/rxledger/internal/store"
)

const (
	testJWTSecret = "test-secret"
	testPassword  = "password123"

	credAdmin        = "0xad00000000000000000000000000000000000001"
	credManufacturer = "0xaa00000000000000000000000000000000000002"
	credDistributor  = "0xdd00000000000000000000000000000000000003"
	credPharmacist   = "0xff00000000000000000000000000000000000004"
	credDoctor       = "0xdc00000000000000000000000000000000000006"
	credPatient      = "0xbb00000000000000000000000000000000000009"
)

type testServer struct {
	*httptest.Server
	ledger *ledger.Ledger
	admin  string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	database := db.NewTestDB(t)
	j, err := journal.OpenMem()
	if err != nil {
		t.Fatalf("opening journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	l := ledger.New(ledger.NewStore(
		ledger.WithLog(j),
		ledger.WithSink(&store.Mirror{DB: database, Source: j}),
	))

	ctx := context.Background()
	if err := l.Registry.EnsureRoles(ctx, model.StandardRoles...); err != nil {
		t.Fatalf("EnsureRoles: %v", err)
	}
	adminRole, _ := l.Registry.Role(model.RoleAdmin)
	if _, err := l.Registry.RegisterUser(ctx, credAdmin, "admin", adminRole.ID); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	hash, _ := auth.HashPassword(testPassword)
	store.CreateAccount(ctx, database, credAdmin, hash)

	server := httptest.NewServer(NewRouter(database, l, j, testJWTSecret))
	t.Cleanup(server.Close)

	ts := &testServer{Server: server, ledger: l}
	ts.admin = ts.login(t, credAdmin, testPassword)
	return ts
}

func (ts *testServer) login(t *testing.T, credential, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"credential": credential, "password": password})
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed for %s: %d", credential, resp.StatusCode)
	}

	var loginResp map[string]string
	json.NewDecoder(resp.Body).Decode(&loginResp)
	if loginResp["token"] == "" {
		t.Fatal("empty token from login")
	}
	return loginResp["token"]
}

// register registers credential with role through the API and returns a
// session token for it.
func (ts *testServer) register(t *testing.T, credential, role string) (model.User, string) {
	t.Helper()
	resp := ts.do(t, "POST", "/api/users", ts.admin, map[string]string{
		"credential": credential,
		"role":       role,
		"password":   testPassword,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("registering %s: expected 201, got %d", credential, resp.StatusCode)
	}
	var u model.User
	decode(t, resp, &u)
	return u, ts.login(t, credential, testPassword)
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var data []byte
	if body != nil {
		data, _ = json.Marshal(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, code ledger.Code) errorResponse {
	t.Helper()
	if resp.StatusCode != status {
		t.Errorf("expected %d, got %d", status, resp.StatusCode)
	}
	var e errorResponse
	decode(t, resp, &e)
	if e.Code != code {
		t.Errorf("expected code %s, got %s (%s)", code, e.Code, e.Error)
	}
	return e
}

func TestLoginEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	for _, body := range []map[string]string{
		{"credential": credAdmin, "password": "wrong"},
		{"credential": credDoctor, "password": testPassword},
	} {
		data, _ := json.Marshal(body)
		resp, _ := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(data))
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401 for %s, got %d", body["credential"], resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	ts := setupTestServer(t)

	resp, _ := http.Get(ts.URL + "/api/prescriptions")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMe(t *testing.T) {
	ts := setupTestServer(t)

	var me model.User
	decode(t, ts.do(t, "GET", "/api/me", ts.admin, nil), &me)
	if me.Credential != credAdmin || me.Role != model.RoleAdmin {
		t.Errorf("unexpected identity %+v", me)
	}
}

func TestPrescriptionAPIFlow(t *testing.T) {
	ts := setupTestServer(t)
	doctor, doctorToken := ts.register(t, credDoctor, model.RoleDoctor)
	_, pharmacistToken := ts.register(t, credPharmacist, model.RolePharmacist)
	patient, _ := ts.register(t, credPatient, model.RolePatient)

	resp := ts.do(t, "POST", "/api/prescriptions", doctorToken, map[string]any{
		"patient_id":   patient.ID,
		"drug_id":      12,
		"dosage":       "500mg twice daily",
		"content_hash": "0xfeed",
		"qr_code":      "QR-1",
		"expires_at":   time.Now().Add(30 * 24 * time.Hour),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var p model.Prescription
	decode(t, resp, &p)
	if p.Status != model.PrescriptionIssued || p.DoctorID != doctor.ID {
		t.Errorf("unexpected prescription %+v", p)
	}

	resp = ts.do(t, "POST", "/api/prescriptions/1/dispense", pharmacistToken, nil)
	expectError(t, resp, http.StatusConflict, ledger.CodeInvalidTransition)

	for _, step := range []string{"verify", "dispense"} {
		resp = ts.do(t, "POST", "/api/prescriptions/1/"+step, pharmacistToken, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", step, resp.StatusCode)
		}
		resp.Body.Close()
	}

	var state model.PrescriptionState
	decode(t, ts.do(t, "GET", "/api/prescriptions/1/status", doctorToken, nil), &state)
	if state.Status != model.PrescriptionDispensed || state.IsRevoked || state.IsExpired {
		t.Errorf("unexpected state %+v", state)
	}

	var valid map[string]bool
	decode(t, ts.do(t, "GET", "/api/prescriptions/1/valid", doctorToken, nil), &valid)
	if valid["valid"] {
		t.Error("dispensed prescription should not be valid")
	}

	var list []model.Prescription
	decode(t, ts.do(t, "GET", "/api/prescriptions?status=Dispensed", doctorToken, nil), &list)
	if len(list) != 1 || list[0].ID != 1 {
		t.Errorf("expected the dispensed prescription in the mirror, got %+v", list)
	}

	var ids []int64
	decode(t, ts.do(t, "GET", "/api/patients/"+itoa(patient.ID)+"/prescriptions", doctorToken, nil), &ids)
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("expected [1] for patient, got %v", ids)
	}
}

func TestLedgerErrorMapping(t *testing.T) {
	ts := setupTestServer(t)
	_, pharmacistToken := ts.register(t, credPharmacist, model.RolePharmacist)

	resp := ts.do(t, "POST", "/api/prescriptions", pharmacistToken, map[string]any{
		"patient_id":   1,
		"drug_id":      1,
		"dosage":       "x",
		"content_hash": "0x1",
		"qr_code":      "q",
		"expires_at":   time.Now().Add(time.Hour),
	})
	e := expectError(t, resp, http.StatusForbidden, ledger.CodeUnauthorized)
	if e.Metadata["role"] != model.RolePharmacist || e.Metadata["allowed"] != model.RoleDoctor {
		t.Errorf("unexpected metadata %v", e.Metadata)
	}

	resp = ts.do(t, "GET", "/api/prescriptions/99", pharmacistToken, nil)
	expectError(t, resp, http.StatusNotFound, ledger.CodeInvalidID)

	resp = ts.do(t, "GET", "/api/patients/0/prescriptions", pharmacistToken, nil)
	expectError(t, resp, http.StatusBadRequest, ledger.CodeInvalidID)

	resp = ts.do(t, "POST", "/api/dispenses", pharmacistToken, map[string]any{
		"prescription_id": 1,
		"batch_id":        1,
		"quantity":        1,
	})
	expectError(t, resp, http.StatusNotFound, ledger.CodeInvalidID)
}

func TestBatchAPIFlow(t *testing.T) {
	ts := setupTestServer(t)
	manufacturer, manufacturerToken := ts.register(t, credManufacturer, model.RoleManufacturer)
	distributor, distributorToken := ts.register(t, credDistributor, model.RoleDistributor)
	_, pharmacistToken := ts.register(t, credPharmacist, model.RolePharmacist)

	resp := ts.do(t, "POST", "/api/batches", manufacturerToken, map[string]any{
		"drug_id":          5,
		"content_hash":     "0xbatch",
		"manufacture_date": time.Now().Add(-24 * time.Hour),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var b model.Batch
	decode(t, resp, &b)

	resp = ts.do(t, "POST", "/api/batches/1/transfer", distributorToken, map[string]string{"new_owner": credPharmacist})
	expectError(t, resp, http.StatusForbidden, ledger.CodeUnauthorized)

	resp = ts.do(t, "POST", "/api/batches/1/transfer", manufacturerToken, map[string]string{"new_owner": "0x0"})
	expectError(t, resp, http.StatusBadRequest, ledger.CodeInvalidTarget)

	resp = ts.do(t, "POST", "/api/batches/1/transfer", manufacturerToken, map[string]string{"new_owner": credDistributor})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("transfer: expected 200, got %d", resp.StatusCode)
	}
	decode(t, resp, &b)
	if b.Status != model.BatchInTransit || b.CurrentOwnerID != distributor.ID {
		t.Errorf("unexpected batch after transfer %+v", b)
	}

	resp = ts.do(t, "POST", "/api/batches/1/transfer", distributorToken, map[string]string{"new_owner": credDistributor})
	expectError(t, resp, http.StatusConflict, ledger.CodeSameOwner)

	var tracked model.Batch
	decode(t, ts.do(t, "GET", "/api/batches/1/track", pharmacistToken, nil), &tracked)
	if tracked.ContentHash != "0xbatch" || tracked.ManufacturerID != manufacturer.ID || tracked.DrugID == 0 ||
		len(tracked.OwnershipHistory) != 2 || tracked.OwnershipHistory[1] != distributor.ID {
		t.Errorf("unexpected tracked batch %+v", tracked)
	}

	var custody []store.CustodyEntry
	decode(t, ts.do(t, "GET", "/api/batches/1/custody", pharmacistToken, nil), &custody)
	if len(custody) != 2 || custody[0].UserID != manufacturer.ID || custody[1].UserID != distributor.ID {
		t.Errorf("unexpected custody %+v", custody)
	}

	// Pharmacists may dispense from a batch they do not hold.
	resp = ts.do(t, "POST", "/api/dispenses", pharmacistToken, map[string]any{
		"prescription_id": 3,
		"batch_id":        1,
		"quantity":        2,
		"external_tx_ref": "pos-77",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("dispense: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	var rec model.DispenseRecord
	decode(t, ts.do(t, "GET", "/api/dispenses/1", pharmacistToken, nil), &rec)
	if rec.BatchID != 1 || rec.Quantity != 2 {
		t.Errorf("unexpected dispense record %+v", rec)
	}

	var missing model.DispenseRecord
	resp = ts.do(t, "GET", "/api/dispenses/2", pharmacistToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for unknown dispense, got %d", resp.StatusCode)
	}
	decode(t, resp, &missing)
	if missing.ID != 0 || missing.BatchID != 0 || missing.Quantity != 0 {
		t.Errorf("expected zero record, got %+v", missing)
	}
}

func TestRoleBasedAccess(t *testing.T) {
	ts := setupTestServer(t)
	_, doctorToken := ts.register(t, credDoctor, model.RoleDoctor)

	for _, path := range []string{"/api/users", "/api/events"} {
		resp := ts.do(t, "GET", path, doctorToken, nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("expected 403 for doctor on %s, got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}

	var events []model.Event
	decode(t, ts.do(t, "GET", "/api/events?after=0&limit=3", ts.admin, nil), &events)
	if len(events) != 3 || events[0].Seq != 1 || events[0].Type != model.EventRoleCreated {
		t.Errorf("unexpected event feed %+v", events)
	}
}

func TestRoleReassignmentTakesEffect(t *testing.T) {
	ts := setupTestServer(t)
	doctor, doctorToken := ts.register(t, credDoctor, model.RoleDoctor)

	resp := ts.do(t, "PUT", "/api/users/"+itoa(doctor.ID)+"/role", ts.admin, map[string]string{"role": model.RolePatient})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign role: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.do(t, "POST", "/api/prescriptions", doctorToken, map[string]any{
		"patient_id":   1,
		"drug_id":      1,
		"dosage":       "x",
		"content_hash": "0x1",
		"qr_code":      "q",
		"expires_at":   time.Now().Add(time.Hour),
	})
	expectError(t, resp, http.StatusForbidden, ledger.CodeUnauthorized)
}

func TestLogoutRevokesToken(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.do(t, "POST", "/api/auth/logout", ts.admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.do(t, "GET", "/api/me", ts.admin, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChangePassword(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.do(t, "PUT", "/api/auth/password", ts.admin, map[string]string{
		"current_password": testPassword,
		"new_password":     "short",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for weak password, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.do(t, "PUT", "/api/auth/password", ts.admin, map[string]string{
		"current_password": testPassword,
		"new_password":     "a-better-password",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	ts.login(t, credAdmin, "a-better-password")
}

func TestContentUpload(t *testing.T) {
	ts := setupTestServer(t)
	_, doctorToken := ts.register(t, credDoctor, model.RoleDoctor)
	_, patientToken := ts.register(t, credPatient, model.RolePatient)

	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := range 32 {
		for y := range 32 {
			img.Set(x, y, color.RGBA{0, 128, 0, 255})
		}
	}
	var pngData bytes.Buffer
	png.Encode(&pngData, img)

	upload := func(token string) *http.Response {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, _ := mw.CreateFormFile("file", "scan.png")
		fw.Write(pngData.Bytes())
		mw.Close()

		req, _ := http.NewRequest("POST", ts.URL+"/api/content", &body)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	resp := upload(patientToken)
	expectError(t, resp, http.StatusForbidden, ledger.CodeUnauthorized)

	resp = upload(doctorToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var c model.Content
	decode(t, resp, &c)
	if len(c.Hash) != 66 || c.MIME != "image/jpeg" {
		t.Errorf("unexpected content %+v", c)
	}

	resp = ts.do(t, "GET", "/api/content/"+c.Hash, patientToken, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", ct)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
