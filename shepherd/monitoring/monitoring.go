package monitoring

import (
	"fmt"
	"net/http"

	"github.com/newrelic/go-agent/v3/integrations/nrlogrus"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/ShepherdCMS/shepherd-app/conf"
	"github.com/ShepherdCMS/shepherd-app/log"
)

var a *apm

type apm struct {
	App *newrelic.Application
}

func (a apm) Start(msg string, w http.ResponseWriter, r *http.Request) *newrelic.Transaction {
	if a.App != nil {
		txn := a.App.StartTransaction(msg)
		if r != nil {
			txn.SetWebRequestHTTP(r)
		}
		if w != nil {
			txn.SetWebResponse(w)
		}
		return txn
	}
	return nil
}

func (a apm) End(txn *newrelic.Transaction) {
	if a.App != nil {
		txn.End()
	}
}

// WrapHandler instruments a single route. The returned pattern/handler pair
// feeds straight into chi's routing methods.
func (a apm) WrapHandler(pattern string, h http.HandlerFunc) (string, func(http.ResponseWriter, *http.Request)) {
	return newrelic.WrapHandleFunc(a.App, pattern, h)
}

func GetMonitor() *apm {
	if a == nil {
		target := conf.GetEnv("DEPLOYMENT_TARGET")
		if target == "" {
			target = "local"
		}
		app, err := newrelic.NewApplication(
			newrelic.ConfigAppName(fmt.Sprintf("Shepherd-%s", target)),
			newrelic.ConfigLicense(conf.GetEnv("NEW_RELIC_LICENSE_KEY")),
			newrelic.ConfigEnabled(true),
			nrlogrus.ConfigStandardLogger(),
			func(cfg *newrelic.Config) {
				cfg.HighSecurity = true
			},
		)
		if err != nil {
			log.API.Error(err)
		}
		a = &apm{
			App: app,
		}
	}
	return a
}
