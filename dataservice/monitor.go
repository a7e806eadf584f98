package dataservice

import "time"

// monitor starts timing op. The returned func logs the elapsed time at debug
// level together with the error, if any:
//
//	done := s.monitor("FetchData")
//	defer func() { done(err) }()
func (s *Service[C]) monitor(op string) func(err error) {
	start := time.Now()
	name := toSnake(op)
	return func(err error) {
		ev := s.logger.Debug().Str("op", name).Dur("duration", time.Since(start))
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Msg("operation finished")
	}
}
