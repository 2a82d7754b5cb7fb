// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"net/http"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/authd/internal/auth"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func refreshBody(token any) map[string]any {
	return map[string]any{"refreshToken": token}
}

func (s *stack) mustLogin(username, password string) map[string]any {
	res := s.post("/auth/login", credentials{username, password})
	Expect(res.status).To(Equal(http.StatusOK), "%v", res.body)
	return res.body
}

func (s *stack) tokenCount(userID any) int {
	var n int
	err := env.pool.QueryRow(env.ctx, `SELECT count(*) FROM refresh_tokens WHERE user_id = $1`, userID).Scan(&n)
	Expect(err).NotTo(HaveOccurred())
	return n
}

var _ = Describe("Password sessions", func() {
	var s *stack

	BeforeEach(func() {
		env.truncate()
		s = newStack(auth.ServiceConfig{})
	})

	It("registers, logs in and verifies", func() {
		res := s.post("/auth/signup", credentials{"alice", "correct horse"})
		Expect(res.status).To(Equal(http.StatusOK))
		Expect(res.body).To(HaveKeyWithValue("message", "User registered successfully"))

		tokens := s.mustLogin("alice", "correct horse")
		Expect(tokens).To(HaveKey("userId"))

		res = s.verify(tokens["token"].(string))
		Expect(res.status).To(Equal(http.StatusOK))
		Expect(res.body["user"]).To(HaveKeyWithValue("username", "alice"))
		Expect(res.body["user"]).To(HaveKeyWithValue("type", "access"))
	})

	It("stores a password digest, never the password", func() {
		Expect(s.post("/auth/signup", credentials{"alice", "correct horse"}).status).To(Equal(http.StatusOK))

		var digest string
		err := env.pool.QueryRow(env.ctx, `SELECT password_digest FROM users WHERE username = 'alice'`).Scan(&digest)
		Expect(err).NotTo(HaveOccurred())
		Expect(digest).To(HavePrefix("$argon2id$"))
		Expect(digest).NotTo(ContainSubstring("correct horse"))
	})

	It("rejects duplicate usernames with a conflict", func() {
		Expect(s.post("/auth/signup", credentials{"alice", "one"}).status).To(Equal(http.StatusOK))
		res := s.post("/auth/signup", credentials{"alice", "two"})
		Expect(res.status).To(Equal(http.StatusConflict))
		Expect(res.body).To(HaveKeyWithValue("error", "User already exists"))
	})

	It("admits exactly one of many concurrent signups for a username", func() {
		const racers = 8
		statuses := make(chan int, racers)
		var wg sync.WaitGroup
		for range racers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				statuses <- s.post("/auth/signup", credentials{"contended", "pw"}).status
			}()
		}
		wg.Wait()
		close(statuses)

		counts := map[int]int{}
		for status := range statuses {
			counts[status]++
		}
		Expect(counts).To(Equal(map[int]int{http.StatusOK: 1, http.StatusConflict: racers - 1}))
	})

	It("reuses the refresh token until logout", func() {
		Expect(s.post("/auth/signup", credentials{"alice", "pw"}).status).To(Equal(http.StatusOK))
		tokens := s.mustLogin("alice", "pw")

		for range 3 {
			res := s.post("/auth/refresh", refreshBody(tokens["refreshToken"]))
			Expect(res.status).To(Equal(http.StatusOK))
			Expect(res.body).NotTo(HaveKey("refreshToken"))
			Expect(s.verify(res.body["token"].(string)).status).To(Equal(http.StatusOK))
		}

		Expect(s.post("/auth/logout", refreshBody(tokens["refreshToken"])).status).To(Equal(http.StatusOK))
		res := s.post("/auth/refresh", refreshBody(tokens["refreshToken"]))
		Expect(res.status).To(Equal(http.StatusUnauthorized))
		Expect(res.body).To(HaveKeyWithValue("error", "Refresh token revoked or invalid"))
	})

	It("rejects refresh tokens past their seven day lifetime", func() {
		Expect(s.post("/auth/signup", credentials{"alice", "pw"}).status).To(Equal(http.StatusOK))
		tokens := s.mustLogin("alice", "pw")

		s.clock.Advance(auth.RefreshTokenTTL + 1)
		res := s.post("/auth/refresh", refreshBody(tokens["refreshToken"]))
		Expect(res.status).To(Equal(http.StatusUnauthorized))
	})

	It("revokes every session with logout-all", func() {
		Expect(s.post("/auth/signup", credentials{"alice", "pw"}).status).To(Equal(http.StatusOK))
		first := s.mustLogin("alice", "pw")
		second := s.mustLogin("alice", "pw")
		Expect(s.tokenCount(first["userId"])).To(Equal(2))

		res := s.post("/auth/logoutall", map[string]any{"userId": first["userId"]})
		Expect(res.status).To(Equal(http.StatusOK))
		Expect(res.body).To(HaveKeyWithValue("count", BeNumerically("==", 2)))

		for _, tokens := range []map[string]any{first, second} {
			Expect(s.post("/auth/refresh", refreshBody(tokens["refreshToken"])).status).To(Equal(http.StatusUnauthorized))
		}
		Expect(s.tokenCount(first["userId"])).To(BeZero())
	})
})

var _ = Describe("Refresh rotation", func() {
	var s *stack

	BeforeEach(func() {
		env.truncate()
		s = newStack(auth.ServiceConfig{RotateRefreshTokens: true})
		Expect(s.post("/auth/signup", credentials{"alice", "pw"}).status).To(Equal(http.StatusOK))
	})

	It("replaces the refresh token on every refresh", func() {
		tokens := s.mustLogin("alice", "pw")

		res := s.post("/auth/refresh", refreshBody(tokens["refreshToken"]))
		Expect(res.status).To(Equal(http.StatusOK))
		next := res.body["refreshToken"]
		Expect(next).NotTo(BeEmpty())

		Expect(s.post("/auth/refresh", refreshBody(tokens["refreshToken"])).status).To(Equal(http.StatusUnauthorized))
		Expect(s.post("/auth/refresh", refreshBody(next)).status).To(Equal(http.StatusOK))
	})

	It("lets exactly one concurrent refresh of the same token win", func() {
		tokens := s.mustLogin("alice", "pw")

		const racers = 6
		statuses := make(chan int, racers)
		var wg sync.WaitGroup
		for range racers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				statuses <- s.post("/auth/refresh", refreshBody(tokens["refreshToken"])).status
			}()
		}
		wg.Wait()
		close(statuses)

		counts := map[int]int{}
		for status := range statuses {
			counts[status]++
		}
		Expect(counts).To(Equal(map[int]int{http.StatusOK: 1, http.StatusUnauthorized: racers - 1}))
		Expect(s.tokenCount(tokens["userId"])).To(Equal(1))
	})
})

var _ = Describe("OTP login", func() {
	const phone = "+15550100"
	var s *stack

	BeforeEach(func() {
		env.truncate()
		s = newStack(auth.ServiceConfig{})
	})

	send := func() string {
		res := s.post("/auth/otp-send", map[string]any{"phoneNo": phone})
		Expect(res.status).To(Equal(http.StatusOK))
		Expect(res.body).NotTo(HaveKey("otp"))
		return s.sender.LastCode(phone)
	}

	It("creates the user on first verification and reuses it afterwards", func() {
		res := s.post("/auth/otp-verify", map[string]any{"phoneNo": phone, "otp": send()})
		Expect(res.status).To(Equal(http.StatusOK))
		Expect(res.body).To(HaveKeyWithValue("newUser", true))
		userID := res.body["userId"]
		firstRefresh := res.body["refreshToken"]

		res = s.post("/auth/otp-verify", map[string]any{"phoneNo": phone, "otp": send()})
		Expect(res.status).To(Equal(http.StatusOK))
		Expect(res.body).To(HaveKeyWithValue("newUser", false))
		Expect(res.body["userId"]).To(Equal(userID))

		res = s.post("/auth/refresh", map[string]any{"refreshToken": firstRefresh})
		Expect(res.status).To(Equal(http.StatusUnauthorized))

		var status string
		err := env.pool.QueryRow(env.ctx,
			`SELECT status FROM otp_codes WHERE contact = $1 ORDER BY id LIMIT 1`, phone).Scan(&status)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(string(auth.OTPUserCreated)))
	})

	It("keeps phone users apart from a password user with the same name", func() {
		Expect(s.post("/auth/signup", credentials{phone, "pw"}).status).To(Equal(http.StatusOK))
		password := s.mustLogin(phone, "pw")

		res := s.post("/auth/otp-verify", map[string]any{"phoneNo": phone, "otp": send()})
		Expect(res.status).To(Equal(http.StatusOK))
		Expect(res.body).To(HaveKeyWithValue("newUser", true))
		Expect(res.body["userId"]).NotTo(Equal(password["userId"]))
	})

	It("accepts a code only once", func() {
		code := send()
		Expect(s.post("/auth/otp-verify", map[string]any{"phoneNo": phone, "otp": code}).status).To(Equal(http.StatusOK))

		res := s.post("/auth/otp-verify", map[string]any{"phoneNo": phone, "otp": code})
		Expect(res.status).To(Equal(http.StatusUnauthorized))
		Expect(res.body).To(HaveKeyWithValue("error", "Invalid or expired OTP"))
	})

	It("rejects and fails an expired code", func() {
		code := send()
		s.clock.Advance(auth.OTPTTL + 1)

		res := s.post("/auth/otp-verify", map[string]any{"phoneNo": phone, "otp": code})
		Expect(res.status).To(Equal(http.StatusUnauthorized))
		Expect(res.body).To(HaveKeyWithValue("error", "Invalid or expired OTP"))

		var status string
		err := env.pool.QueryRow(env.ctx, `SELECT status FROM otp_codes WHERE contact = $1`, phone).Scan(&status)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(string(auth.OTPFailed)))
	})
})
