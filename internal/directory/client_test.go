// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(server.URL).WithHTTPClient(server.Client())
	return client, server
}

func TestListEmployees(t *testing.T) {
	var gotPath, gotQuery, gotAuth, gotRequestID string
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		json.NewEncoder(w).Encode(Page{
			Items: []Employee{
				{ID: "e-1", Name: "Dana Cho", Title: "Analyst", OrgUnit: "J2", Email: "dcho@example.mil", Location: "Bldg 4"},
				{ID: "e-2", Name: "Raul Vega", Title: "Planner", OrgUnit: "J5", Email: "rvega@example.mil", Location: "Bldg 7"},
			},
			Total:      12,
			NextOffset: 2,
		})
	})

	page, err := client.ListEmployees(context.Background(), "sess_abc", "cho", 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, 12, page.Total)
	require.Equal(t, 2, page.NextOffset)
	require.Equal(t, "Dana Cho", page.Items[0].Name)

	require.Equal(t, "/v1/employees", gotPath)
	require.Equal(t, "limit=2&offset=0&q=cho", gotQuery)
	require.Equal(t, "Bearer sess_abc", gotAuth)
	require.NotEmpty(t, gotRequestID)
}

func TestListEmployeesOmitsEmptyQuery(t *testing.T) {
	var gotQuery string
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(Page{})
	})

	_, err := client.ListEmployees(context.Background(), "sess_abc", "", 20, 10)
	require.NoError(t, err)
	require.Equal(t, "limit=10&offset=20", gotQuery)
}

func TestGetEmployee(t *testing.T) {
	var gotPath string
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(Employee{ID: "e 9", Name: "Mia Ford"})
	})

	employee, err := client.GetEmployee(context.Background(), "sess_abc", "e 9")
	require.NoError(t, err)
	require.Equal(t, "Mia Ford", employee.Name)
	require.Equal(t, "/v1/employees/e%209", gotPath)
}

func TestErrorStatusSurfacesCode(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	_, err := client.ListEmployees(context.Background(), "sess_expired", "", 0, 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

func TestUnreachableServer(t *testing.T) {
	client, server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.ListEmployees(context.Background(), "sess_abc", "", 0, 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "directory request failed")
}

func TestMalformedResponse(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	})

	_, err := client.ListEmployees(context.Background(), "sess_abc", "", 0, 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode")
}
