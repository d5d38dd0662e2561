package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/CodedInternet/gateway/onboard"
	"github.com/CodedInternet/gateway/onboard/calibration"
	"github.com/CodedInternet/gateway/onboard/samples"
	"github.com/CodedInternet/gateway/onboard/state"
)

func testGateway(t *testing.T) *onboard.Gateway {
	dir := t.TempDir()
	cfg := onboard.DefaultConfig()
	cfg.Logging.Dir = filepath.Join(dir, "logs")
	cfg.History = filepath.Join(dir, "gateway.db")
	gw, err := onboard.NewGateway(cfg, onboard.Options{Simulate: true}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { gw.Close() })
	return gw
}

func TestAPI(t *testing.T) {
	Convey("Given the HTTP API over an idle gateway", t, func() {
		gw := testGateway(t)
		srv := httptest.NewServer(NewRouter(gw, zerolog.Nop()))
		Reset(srv.Close)

		Convey("GET /api/state reports INIT and the seeded store", func() {
			res, err := http.Get(srv.URL + "/api/state")
			So(err, ShouldBeNil)
			defer res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusOK)

			var body StatusResponse
			So(json.NewDecoder(res.Body).Decode(&body), ShouldBeNil)
			So(body.State, ShouldEqual, "INIT")
			So(body.Store, ShouldContainKey, state.KeyCmd)
			So(body.Offsets, ShouldHaveLength, 16)
			So(body.Pots, ShouldBeEmpty)
			So(body.PotUpdated, ShouldBeNil)
			So(body.LastZero, ShouldBeNil)
			So(body.Calibration.Phase, ShouldEqual, calibration.PhaseIdle.String())
		})

		Convey("GET /api/state carries the latest pots and zero calibration", func() {
			var m samples.Matrix
			m.SetChannel(0, 1234)
			gw.Pots().PushBack(m)
			_, err := gw.History().Record(calibration.Result{Converged: []int{0}, Offsets: []float64{0.5}})
			So(err, ShouldBeNil)

			res, err := http.Get(srv.URL + "/api/state")
			So(err, ShouldBeNil)
			defer res.Body.Close()

			var body StatusResponse
			So(json.NewDecoder(res.Body).Decode(&body), ShouldBeNil)
			So(body.Pots[0], ShouldEqual, uint16(1234))
			So(body.PotUpdated, ShouldNotBeNil)
			So(body.LastZero, ShouldNotBeNil)
			So(body.LastZero.Offsets, ShouldResemble, []float64{0.5})
		})

		Convey("POST /api/cmd posts the command", func() {
			res, err := http.Post(srv.URL+"/api/cmd", "application/json", strings.NewReader(`{"code":1}`))
			So(err, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusAccepted)
			So(gw.Controls().PendingCommand(), ShouldEqual, state.CmdFullCalibration)
		})

		Convey("POST /api/cmd without a code is rejected", func() {
			res, err := http.Post(srv.URL+"/api/cmd", "application/json", strings.NewReader(`{}`))
			So(err, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusBadRequest)
			So(gw.Controls().PendingCommand(), ShouldEqual, state.CmdNone)
		})

		Convey("POST /api/store injects a key=value line", func() {
			res, err := http.Post(srv.URL+"/api/store", "application/json", strings.NewReader(`{"line":"pot=2"}`))
			So(err, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusOK)
			So(gw.Controls().TakePotEcho(), ShouldEqual, 2)
		})

		Convey("POST /api/store rejects unknown keys", func() {
			res, err := http.Post(srv.URL+"/api/store", "application/json", strings.NewReader(`{"line":"bogus=1"}`))
			So(err, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET /api/calibrations lists nothing before a zero calibration", func() {
			res, err := http.Get(srv.URL + "/api/calibrations")
			So(err, ShouldBeNil)
			defer res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusOK)

			var runs []map[string]any
			So(json.NewDecoder(res.Body).Decode(&runs), ShouldBeNil)
			So(runs, ShouldBeEmpty)
		})

		Convey("recorded calibrations are listed", func() {
			_, err := gw.History().Record(calibration.Result{Converged: []int{0, 1}, Offsets: make([]float64, 16)})
			So(err, ShouldBeNil)

			res, err := http.Get(srv.URL + "/api/calibrations")
			So(err, ShouldBeNil)
			defer res.Body.Close()

			var runs []map[string]any
			So(json.NewDecoder(res.Body).Decode(&runs), ShouldBeNil)
			So(runs, ShouldHaveLength, 1)
		})
	})
}
