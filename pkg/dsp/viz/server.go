package viz

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

type ImageContainer struct {
	name string
	data []byte
}

func (i *ImageContainer) Name() string { return i.name }
func (i *ImageContainer) Data() []byte { return i.data }

type Producer interface {
	Name() string
	GetImage() *ImageContainer
	AddPlotOption(opt PlotOptions)
}

// Server renders registered producers into PNGs at a fixed interval while a
// bucket is being viewed, and serves them over HTTP.
type Server struct {
	mu              sync.RWMutex
	images          map[string]map[string]*ImageContainer
	producerBuckets map[string]map[string]Producer
	lastViewed      map[string]time.Time
	updateInterval  time.Duration
	enabled         bool
	srv             *http.Server
}

func NewServer(port int, updateInterval time.Duration) *Server {
	if updateInterval <= 0 {
		updateInterval = 500 * time.Millisecond
	}
	s := &Server{
		images:          make(map[string]map[string]*ImageContainer),
		producerBuckets: make(map[string]map[string]Producer),
		lastViewed:      make(map[string]time.Time),
		updateInterval:  updateInterval,
		enabled:         true,
		srv:             &http.Server{Addr: fmt.Sprintf(":%d", port)},
	}
	s.srv.Handler = s.Handler()
	return s
}

func (s *Server) Enable(enable bool) {
	s.mu.Lock()
	s.enabled = enable
	s.mu.Unlock()
}

func (s *Server) Register(bucket string, p Producer) {
	s.mu.Lock()
	b, ok := s.producerBuckets[bucket]
	if !ok {
		b = make(map[string]Producer)
		s.producerBuckets[bucket] = b
	}
	b[p.Name()] = p
	s.mu.Unlock()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Run serves HTTP and refreshes images until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go s.refreshLoop(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", s.srv.Addr).Msg("viz server listening")
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.updateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(false)
		}
	}
}

// Refresh renders the producers of every recently viewed bucket, or of all
// buckets when force is set.
func (s *Server) Refresh(force bool) {
	s.mu.RLock()
	if !s.enabled {
		s.mu.RUnlock()
		return
	}
	work := make(map[string][]Producer)
	for name, bucket := range s.producerBuckets {
		if !force && time.Since(s.lastViewed[name]) > 5*time.Second {
			continue
		}
		for _, p := range bucket {
			work[name] = append(work[name], p)
		}
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for bucket, producers := range work {
		for _, p := range producers {
			wg.Add(1)
			go func(bucket string, p Producer) {
				defer wg.Done()
				img := p.GetImage()
				if img == nil {
					return
				}
				s.mu.Lock()
				mb, ok := s.images[bucket]
				if !ok {
					mb = make(map[string]*ImageContainer)
					s.images[bucket] = mb
				}
				mb[img.name] = img
				s.mu.Unlock()
			}(bucket, p)
		}
	}
	wg.Wait()
}

var viewTemplate = template.Must(template.New("view").Parse(`<html><head><title>plcvlc viz</title>
<script type="text/javascript">
	window.onload = function() {
		var imgs = document.getElementsByTagName('img');
		setInterval(function() {
			for (var i = 0; i < imgs.length; i++) {
				imgs[i].src = imgs[i].src.split("?")[0] + "?" + new Date().getTime();
			}
		}, {{.RefreshMs}});
	}
</script></head>
<body style="background-color: black; color: white">
<div>{{range .Buckets}}<a style="color: white" href="/view/{{.}}">{{.}}</a> {{end}}</div>
<div style="display: flex; flex-direction: row; flex-wrap: wrap">
{{range .Images}}<div><img src="/img/{{$.Bucket}}/{{.}}" /></div>
{{end}}</div>
</body></html>`))

func (s *Server) Handler() http.Handler {
	router := httprouter.New()

	router.GET("/", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		keys := s.bucketNames()
		if len(keys) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Redirect(w, r, "/view/"+url.PathEscape(keys[0]), http.StatusFound)
	})

	router.GET("/view/:bucket", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		bucket := params.ByName("bucket")

		s.mu.Lock()
		producers, ok := s.producerBuckets[bucket]
		if ok {
			s.lastViewed[bucket] = time.Now()
		}
		names := make([]string, 0, len(producers))
		for name := range producers {
			names = append(names, name)
		}
		s.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		sort.Strings(names)

		w.Header().Set("Content-Type", "text/html")
		err := viewTemplate.Execute(w, struct {
			Bucket    string
			Buckets   []string
			Images    []string
			RefreshMs int64
		}{bucket, s.bucketNames(), names, s.updateInterval.Milliseconds()})
		if err != nil {
			log.Warn().Err(err).Msg("error rendering view")
		}
	})

	router.GET("/img/:bucket/:img", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		bucket := params.ByName("bucket")

		s.mu.Lock()
		s.lastViewed[bucket] = time.Now()
		img := s.images[bucket][params.ByName("img")]
		s.mu.Unlock()

		if img == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(img.data)
	})

	return router
}

func (s *Server) bucketNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.producerBuckets))
	for name := range s.producerBuckets {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}
