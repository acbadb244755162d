package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ruiping-ai/ruiping/internal/casestore"
	"github.com/ruiping-ai/ruiping/internal/llm"
	"github.com/ruiping-ai/ruiping/internal/session"
)

// CreateCaseRequest defines the payload for opening a new review case.
type CreateCaseRequest struct {
	Subject         string  `json:"subject"`
	RoleName        string  `json:"role_name"`
	RoleDescription string  `json:"role_description"`
	Tier            string  `json:"tier"`
	Suggestion      string  `json:"suggestion"`
	Style           string  `json:"style"`
	TTS             bool    `json:"tts"`
	TTSModel        string  `json:"tts_model"`
	TTSSpeed        float64 `json:"tts_speed"`
	LLMModel        string  `json:"llm_model"`
}

type createCaseResponse struct {
	CaseID string `json:"case_id"`
}

var tierNames = []string{"夯", "頂級", "人上人", "NPC", "拉完了"}

func validTier(tier string) bool {
	for _, t := range tierNames {
		if tier == t {
			return true
		}
	}
	return false
}

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	var req CreateCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "empty_body", "request body is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	req.Subject = strings.TrimSpace(req.Subject)
	if req.Subject == "" {
		respondError(w, http.StatusBadRequest, "empty_subject", "subject is required")
		return
	}
	if strings.TrimSpace(req.RoleName) == "" {
		req.RoleName = "銳評AI"
	}
	if req.Tier != "" && !validTier(req.Tier) {
		respondError(w, http.StatusBadRequest, "invalid_tier", "tier must be one of 夯, 頂級, 人上人, NPC, 拉完了")
		return
	}
	if strings.TrimSpace(req.LLMModel) == "" {
		req.LLMModel = s.cfg.OpenRouterDefaultModel
	}
	if req.TTSSpeed == 0 {
		req.TTSSpeed = 1.0
	}
	if req.TTSSpeed < s.cfg.TTSSpeedMin || req.TTSSpeed > s.cfg.TTSSpeedMax {
		respondError(w, http.StatusBadRequest, "invalid_speed",
			fmt.Sprintf("tts_speed must be between %.1f and %.1f", s.cfg.TTSSpeedMin, s.cfg.TTSSpeedMax))
		return
	}

	prompt := buildPrompt(req)
	if err := s.llm.Validate(prompt, req.LLMModel); err != nil {
		switch {
		case errors.Is(err, llm.ErrUnsupportedModel):
			respondError(w, http.StatusBadRequest, "unsupported_model", err.Error())
		case errors.Is(err, llm.ErrEmptyPrompt):
			respondError(w, http.StatusBadRequest, "empty_subject", err.Error())
		default:
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		}
		return
	}

	voiceID := strings.TrimSpace(req.TTSModel)
	if voiceID == "" {
		voiceID = s.cfg.FishAudioDefaultVoice
	}

	sess := session.New(
		session.Config{
			Prompt:     prompt,
			LLMModel:   req.LLMModel,
			TTSEnabled: req.TTS,
			VoiceID:    voiceID,
			Speed:      req.TTSSpeed,
		},
		session.Deps{
			LLM:     s.llm,
			Synth:   s.synth,
			Sink:    s.sink,
			Metrics: s.metrics,
			Log:     s.log,
		},
	)
	// The producers outlive this request; only registry eviction or shutdown
	// should stop them. Registration happens after a successful start so a
	// failed upstream call never leaves a resolvable dead case.
	if err := sess.Start(context.WithoutCancel(r.Context())); err != nil {
		s.log.Error().Err(err).Str("case_id", sess.ID).Msg("session start failed")
		respondError(w, http.StatusBadGateway, "upstream_unavailable", err.Error())
		return
	}
	s.registry.Register(sess)

	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("created").Inc()
	}
	s.log.Info().
		Str("case_id", sess.ID).
		Str("subject", req.Subject).
		Str("model", req.LLMModel).
		Bool("tts", req.TTS).
		Msg("case created")

	// Best effort; the stream does not depend on the record.
	if err := s.store.SaveCase(r.Context(), casestore.CaseRecord{
		ID:         sess.ID,
		Subject:    req.Subject,
		RoleName:   req.RoleName,
		LLMModel:   req.LLMModel,
		VoiceID:    voiceID,
		TTSEnabled: req.TTS,
		CreatedAt:  sess.CreatedAt,
	}); err != nil {
		s.log.Warn().Err(err).Str("case_id", sess.ID).Msg("case record not saved")
	}

	respondJSON(w, http.StatusCreated, createCaseResponse{CaseID: sess.ID})
}

func ifExists(format, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return fmt.Sprintf(format, value)
}

// buildPrompt assembles the roast persona prompt. The tier marker contract
// lives here: the model is told to embed exactly one bracketed marker, which
// the frontend maps to the tier board and the speech pipeline strips.
func buildPrompt(req CreateCaseRequest) string {
	var b strings.Builder
	b.WriteString("你是一個扮演" + req.RoleName + "的銳評AI，你會以從夯到拉完了五個等級來銳評事物，從好到壞為：夯、頂級、人上人、NPC、拉完了，簡稱「從夯到拉」\n")
	b.WriteString("你可以將從夯到拉銳評想像成完成一份 Tier List。像那些 youtuber 或是直播主會做的那種 Tier List，從夯到拉完了分成五個等級，然後將事物放在不同的等級裡面，並且給出理由。\n")
	b.WriteString("口氣不應該為理性分析，而是應該為銳評，帶有主觀情緒的評價，盡情發表你的想法，並且要有說服力，讓人信服你的評價。\n")
	b.WriteString("你應該輸出一段話，不需要過長、不需要換行，更不需要列點，要簡潔有力，不能超過 100 字，來說明你對這個事物的評價，並且在文中給出一個等級，從夯到拉完了其中一個。\n")
	b.WriteString("應該多使用「夯」和「拉完了」，因為這樣才有銳評的感覺，如果你給的評價都是「人上人」或是「NPC」，那就太中規中矩了，不夠銳評，十分無聊。\n")
	b.WriteString("希望內容要能搏人眼球，讓人印象深刻，最好能讓人覺得你這個銳評 AI 是有個性的，甚至是有點毒舌的，這樣才有銳評的感覺。\n")
	b.WriteString("現在有一個重要的提醒：在文內，必須包含一個 `[從夯到拉]` 的標示，表示在這時將前端網頁上的圖標移動至對應評級，並且要用`[夯]`、`[頂級]`、`[人上人]`、`[NPC]`、`[拉完了]` 之一，包含方括號。\n")
	b.WriteString("一定要包含此項內容，不然前端網頁不知道何時要將圖標移至對應評級，但只能出現一次。請注意：此項內容將對使用者隱藏，且不會由文字轉語音模型唸出，因此在使用時通常需要搭配普通文字使用，例如：「這真的必須給到夯[夯]」，而不是「這真的必須給到[夯]」，因為這樣使用者看不到也聽不到「夯」這個字。\n")
	b.WriteString("建議不要太早公布評級，要先描述一下對這個事物的看法，然後在最後才公布評級，這樣才有銳評的感覺，不要一開始就說「這必須給到夯[夯]」，那樣就太無聊了。\n")
	b.WriteString("由於會由語音模型唸出，因此請不要使用表情符號及 markdown 語法，請直接用普通文字來表達你的想法。\n")
	b.WriteString("請使用台灣繁體中文回答，並且盡量使用口語化的表達方式，不要使用太過正式或是書面的語言。\n")
	b.WriteString("這裡提供一些常用的揭露銳評結果的句子範例，供你參考使用：\n")
	b.WriteString("1. 這個東西真的必須給到夯[夯]\n")
	b.WriteString("2. 這大概可以給到[頂級]\n")
	b.WriteString("3. 這只能給個人上人[人上人]\n")
	b.WriteString("4. 這只能給個NPC[NPC]\n")
	b.WriteString("5. 這只能給到拉完了[拉完了]\n")
	b.WriteString("你可以參考以上的句子範例來表達你的想法，但也要有自己的創意，這樣才有銳評的感覺。\n")
	b.WriteString("你是「" + req.RoleName + "」，請以『" + req.RoleName + "』的身份來進行銳評，你必須以你對他的了解，投入他的角色，並假裝你就是他，以他的身份，站在他的立場，模仿他的語氣發表評論，例如如果他是古人，且他都使用文言文，那你也可以使用文言文來銳評。\n")
	b.WriteString("你必須直接以第一人稱來回答，如果有需要可以自稱「我」，但不能說「" + req.RoleName + "認為」或是「" + req.RoleName + "覺得」，這樣就太無聊了，沒有銳評的感覺了。\n")
	b.WriteString(ifExists("你可以根據使用者提供的角色描述來更好地扮演這個角色，並且給出更符合這個角色的評價，讓你的銳評更有個性，更有說服力。角色描述如下：%s。\n", req.RoleDescription))
	b.WriteString("你今天要銳評的東西是「" + req.Subject + "」" + ifExists("，使用者已設定他的評級為「%s」，請按照使用者的描述來完成銳評", req.Tier) + "\n")
	b.WriteString(ifExists("使用者請求你以「%s」的風格來進行銳評，希望你能參考其建議來進行。\n", req.Style))
	b.WriteString(ifExists("以下是一些使用者額外的請求：%s。\n", req.Suggestion))
	b.WriteString("現在請開始你的銳評吧！相信你可以做到的！")
	return b.String()
}
