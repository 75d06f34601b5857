package domain

import "fmt"

// Типы executor'ов, известные воркеру.
const (
	StageTypeScript    = "script"
	StageTypeVoice     = "voice"
	StageTypeVideo     = "video"
	StageTypeComposite = "composite"
	StageTypeScene     = "scene"
	StageTypeClip      = "clip"
	StageTypeLipsync   = "lipsync"
	StageTypeStitch    = "stitch"
)

// Имена встроенных pipelines.
const (
	PipelineTemplate = "template"
	PipelineScenes   = "scenes"
)

// StageDef — дескриптор одного stage в pipeline.
type StageDef struct {
	// Name — имя stage, уникальное внутри pipeline.
	Name string `json:"name"`

	// Type — тип executor'а.
	Type string `json:"type"`
}

// Pipeline — упорядоченная последовательность stages для job.
//
// Последовательность data-driven: фиксированная для "template"
// и производная от входных данных для "scenes" (один clip-stage
// на каждую сцену). Stages выполняются строго последовательно.
type Pipeline struct {
	Name   string     `json:"name"`
	Stages []StageDef `json:"stages"`
}

// BuildPipeline строит pipeline по имени и входным данным job.
//
// Ошибки построения fatal: некорректный pipeline или вход не станет
// корректным при повторной попытке.
func BuildPipeline(name string, input map[string]any) (*Pipeline, error) {
	switch name {
	case PipelineTemplate:
		return &Pipeline{
			Name: PipelineTemplate,
			Stages: []StageDef{
				{Name: "script", Type: StageTypeScript},
				{Name: "voice", Type: StageTypeVoice},
				{Name: "video", Type: StageTypeVideo},
				{Name: "composite", Type: StageTypeComposite},
			},
		}, nil

	case PipelineScenes:
		count, err := sceneCount(input)
		if err != nil {
			return nil, err
		}

		stages := []StageDef{{Name: "scene", Type: StageTypeScene}}
		for i := 1; i <= count; i++ {
			stages = append(stages, StageDef{
				Name: fmt.Sprintf("clip-%d", i),
				Type: StageTypeClip,
			})
		}
		stages = append(stages,
			StageDef{Name: "lipsync", Type: StageTypeLipsync},
			StageDef{Name: "stitch", Type: StageTypeStitch},
		)

		return &Pipeline{Name: PipelineScenes, Stages: stages}, nil

	default:
		return nil, NewFatalError(ErrKindUnsupported, "unknown pipeline %q", name)
	}
}

// sceneCount извлекает количество сцен из входных данных.
// Принимает либо массив "scenes", либо число "scene_count".
func sceneCount(input map[string]any) (int, error) {
	if scenes, ok := input["scenes"].([]any); ok {
		if len(scenes) == 0 {
			return 0, NewFatalError(ErrKindInvalidInput, "scenes list is empty")
		}
		return len(scenes), nil
	}

	switch v := input["scene_count"].(type) {
	case float64: // JSON числа декодируются в float64
		if v < 1 {
			return 0, NewFatalError(ErrKindInvalidInput, "scene_count must be positive, got %v", v)
		}
		return int(v), nil
	case int:
		if v < 1 {
			return 0, NewFatalError(ErrKindInvalidInput, "scene_count must be positive, got %d", v)
		}
		return v, nil
	}

	return 0, NewFatalError(ErrKindInvalidInput, "scenes pipeline requires scenes or scene_count input")
}

// StageIndex возвращает позицию stage в pipeline или -1.
func (p *Pipeline) StageIndex(name string) int {
	for i, def := range p.Stages {
		if def.Name == name {
			return i
		}
	}
	return -1
}

// StageSpan возвращает границы job-уровневого прогресса для stage
// с индексом i: stages равномерно делят 0–100.
// Например, 4 stages → 0–25, 25–50, 50–75, 75–100.
func (p *Pipeline) StageSpan(i int) (start, end int) {
	n := len(p.Stages)
	if n == 0 {
		return 0, 0
	}
	return i * 100 / n, (i + 1) * 100 / n
}

// OverallProgress — общий прогресс job: среднее арифметическое
// прогресса всех stages pipeline. Ещё не созданные stages считаются
// с прогрессом 0, поэтому общий прогресс растёт плавно от 0 до 100.
func (p *Pipeline) OverallProgress(stages []Stage) int {
	if len(p.Stages) == 0 {
		return 0
	}

	byName := make(map[string]int, len(stages))
	for i := range stages {
		byName[stages[i].Name] = stages[i].Progress
	}

	sum := 0
	for _, def := range p.Stages {
		sum += byName[def.Name]
	}
	return sum / len(p.Stages)
}
