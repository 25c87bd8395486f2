package cache

import (
	"net/url"
	"strings"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "default method",
			key:  CacheKey{Endpoint: "/Schedules/ScheduleGroupSelection.aspx"},
			want: "rozklad:GET:Schedules/ScheduleGroupSelection.aspx",
		},
		{
			name: "schedule page",
			key: CacheKey{
				Method:      "get",
				Endpoint:    "/Schedules/ViewSchedule.aspx",
				QueryParams: url.Values{"g": []string{"0b4c3a5e-1f4e-4e0f-9a0b-4a8c6d2f1e3a"}},
			},
			want: "rozklad:GET:Schedules/ViewSchedule.aspx:g=0b4c3a5e-1f4e-4e0f-9a0b-4a8c6d2f1e3a",
		},
		{
			name: "query params sorted",
			key: CacheKey{
				Method:   "GET",
				Endpoint: "/x/",
				QueryParams: url.Values{
					"v":    []string{"2"},
					"mode": []string{"print"},
				},
			},
			want: "rozklad:GET:x:mode=print:v=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("CacheKey.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheKey_BodyIsHashed(t *testing.T) {
	a := CacheKey{Method: "POST", Endpoint: "/GetGroups", Body: `{"prefixText":"ІП","count":100}`}
	b := CacheKey{Method: "POST", Endpoint: "/GetGroups", Body: `{"prefixText":"ІС","count":100}`}

	if a.String() == b.String() {
		t.Errorf("different bodies produced the same key %s", a.String())
	}
	if a.String() != a.String() {
		t.Error("key is not deterministic")
	}
	if strings.Contains(a.String(), "prefixText") {
		t.Errorf("raw body leaked into key %s", a.String())
	}
	if !strings.HasPrefix(a.String(), "rozklad:POST:GetGroups:body=") {
		t.Errorf("unexpected key layout %s", a.String())
	}
}
