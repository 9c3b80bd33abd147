package worker

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/offline-hub/offline-hub/internal/storage"
)

// PopulationResult 记录单个清单条目的预缓存结果。Err 非空表示该条目失败，
// 但安装整体不受影响。
type PopulationResult struct {
	URL  string
	Mode Mode
	Err  error
}

// Failed 表示该条目是否写入失败。
func (r PopulationResult) Failed() bool {
	return r.Err != nil
}

// PopulationReport 聚合一次安装（或 CACHE_URLS 补缓存）的逐条结果。
// 无论各条目成败，安装本身总被视为成功。
type PopulationReport struct {
	Bucket  string
	Results []PopulationResult
}

// Succeeded 返回成功写入的条目数。
func (r *PopulationReport) Succeeded() int {
	return len(r.Results) - len(r.Failures())
}

// Failures 返回失败条目的子集，供日志与诊断输出。
func (r *PopulationReport) Failures() []PopulationResult {
	var failed []PopulationResult
	for _, result := range r.Results {
		if result.Failed() {
			failed = append(failed, result)
		}
	}
	return failed
}

// Install 处理 install 事件：打开（或创建）当前版本桶并按清单逐条预缓存。
// 填充是尽力而为的，单条失败只记入报告；同版本重复执行只会覆盖同键条目。
// 安装完成后立即示意跳过等待，宿主应紧接着投递 activate。
func (w *Worker) Install(ctx context.Context) (report *PopulationReport, err error) {
	defer w.recoverEvent(EventInstall, &err)

	if err := w.dispatch(EventInstall); err != nil {
		return nil, err
	}

	bucket, err := w.storage.OpenBucket(ctx, w.CacheName())
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", w.CacheName(), err)
	}
	w.mu.Lock()
	w.bucket = bucket
	w.mu.Unlock()

	report = w.populate(ctx, bucket, w.manifest)
	for _, failure := range report.Failures() {
		w.logger.WithError(failure.Err).WithFields(logrus.Fields{
			"action": "precache_entry",
			"bucket": w.CacheName(),
			"url":    failure.URL,
			"mode":   string(failure.Mode),
		}).Warn("manifest entry failed")
	}
	w.logger.WithFields(logrus.Fields{
		"action":    "install",
		"bucket":    w.CacheName(),
		"total":     len(report.Results),
		"succeeded": report.Succeeded(),
	}).Info("install complete")

	w.setState(StateInstalled)

	// skip-waiting：不等待旧客户端关闭，直接请求接管
	w.logger.WithFields(logrus.Fields{
		"action": "skip_waiting",
		"bucket": w.CacheName(),
	}).Debug("skip waiting requested")

	return report, nil
}

// Activate 处理 activate 事件：枚举全部桶并删除所有名字不等于当前版本的桶，
// 然后立即接管所有打开的客户端。单个桶删除失败只记日志，绝不阻塞激活。
func (w *Worker) Activate(ctx context.Context) (err error) {
	defer w.recoverEvent(EventActivate, &err)

	if err := w.dispatch(EventActivate); err != nil {
		return err
	}
	w.setState(StateActivating)

	names, err := w.storage.ListBuckets(ctx)
	if err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"action": "prune_buckets",
			"bucket": w.CacheName(),
		}).Warn("list buckets failed")
	}
	for _, name := range names {
		if name == w.CacheName() {
			continue
		}
		if err := w.storage.DeleteBucket(ctx, name); err != nil {
			// 删除失败只影响该旧桶自身，留给下次激活重试
			w.logger.WithError(err).WithFields(logrus.Fields{
				"action": "prune_buckets",
				"stale":  name,
			}).Warn("delete stale bucket failed")
			continue
		}
		w.logger.WithFields(logrus.Fields{
			"action": "prune_buckets",
			"stale":  name,
		}).Info("stale bucket removed")
	}

	if w.clients != nil {
		if err := w.clients.Claim(ctx); err != nil {
			w.logger.WithError(err).WithFields(logrus.Fields{
				"action": "claim_clients",
				"bucket": w.CacheName(),
			}).Warn("claim clients failed")
		}
	}

	w.setState(StateActive)
	return nil
}

// populate 逐条拉取并写入。跨源条目用 no-cors 模式拉取，接受 opaque 响应；
// 同源条目要求 200，否则记为失败。所有错误都被吞掉，只进报告。
func (w *Worker) populate(ctx context.Context, bucket storage.Bucket, urls []string) *PopulationReport {
	report := &PopulationReport{Bucket: w.CacheName()}

	for _, raw := range urls {
		mode := ModeCORS
		if w.isExternal(raw) {
			mode = ModeNoCORS
		}
		result := PopulationResult{URL: raw, Mode: mode}
		result.Err = w.populateOne(ctx, bucket, raw, mode)
		report.Results = append(report.Results, result)
	}

	return report
}

func (w *Worker) populateOne(ctx context.Context, bucket storage.Bucket, raw string, mode Mode) error {
	resolved := w.resolveURL(raw)
	req := &Request{
		Method: http.MethodGet,
		URL:    resolved,
		Header: http.Header{},
		Mode:   mode,
	}

	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if resp.Type == storage.TypeBasic && resp.Status != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.Status)
	}

	key := storage.Key{Method: http.MethodGet, URL: resolved}
	return bucket.Put(ctx, key, snapshotFromResponse(resp))
}
